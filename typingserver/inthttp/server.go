// Copyright 2024 The Hearth Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inthttp

import (
	"github.com/gorilla/mux"

	"github.com/hearthchat/hearth/internal/httputil"
	"github.com/hearthchat/hearth/typingserver/api"
)

// AddRoutes adds the TypingServerInternalAPI handlers to the http.ServeMux.
func AddRoutes(intAPI api.TypingServerInternalAPI, internalAPIMux *mux.Router) {
	internalAPIMux.Handle(
		TypingServerUpsertPath,
		httputil.MakeInternalRPCAPI("TypingServerUpsert", intAPI.Upsert),
	)

	internalAPIMux.Handle(
		TypingServerRemovePath,
		httputil.MakeInternalRPCAPI("TypingServerRemove", intAPI.Remove),
	)

	internalAPIMux.Handle(
		TypingServerListLivePath,
		httputil.MakeInternalRPCAPI("TypingServerListLive", intAPI.ListLive),
	)
}
