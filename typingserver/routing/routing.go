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

package routing

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/matrix-org/util"

	"github.com/hearthchat/hearth/internal/httputil"
	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/typingserver/api"
	"github.com/hearthchat/hearth/typingserver/notifier"
)

// Setup registers the client API handlers on csMux.
func Setup(
	csMux *mux.Router,
	typingAPI api.TypingServerInternalAPI,
	tokenAPI api.QueryAccessTokenAPI,
	n *notifier.Notifier,
	clock clockwork.Clock,
	cfg *config.TypingServer,
	enableMetrics bool,
) {
	v1mux := csMux.PathPrefix("/v1/").Subrouter()

	v1mux.Handle("/conversations/{conversationID}/typing",
		httputil.MakeAuthAPI("start_typing", tokenAPI, func(req *http.Request, actorID string) util.JSONResponse {
			vars, err := httputil.URLDecodeMapValues(mux.Vars(req))
			if err != nil {
				return util.ErrorResponse(err)
			}
			return StartTyping(req, typingAPI, actorID, vars["conversationID"])
		}),
	).Methods(http.MethodPut, http.MethodOptions)

	v1mux.Handle("/conversations/{conversationID}/typing",
		httputil.MakeAuthAPI("stop_typing", tokenAPI, func(req *http.Request, actorID string) util.JSONResponse {
			vars, err := httputil.URLDecodeMapValues(mux.Vars(req))
			if err != nil {
				return util.ErrorResponse(err)
			}
			return StopTyping(req, typingAPI, actorID, vars["conversationID"])
		}),
	).Methods(http.MethodDelete)

	v1mux.Handle("/conversations/{conversationID}/typing",
		httputil.MakeAuthAPI("get_typing", tokenAPI, func(req *http.Request, actorID string) util.JSONResponse {
			vars, err := httputil.URLDecodeMapValues(mux.Vars(req))
			if err != nil {
				return util.ErrorResponse(err)
			}
			return GetTyping(req, typingAPI, n, clock, cfg, actorID, vars["conversationID"])
		}),
	).Methods(http.MethodGet)

	live := &liveTyping{
		typingAPI: typingAPI,
		notifier:  n,
		clock:     clock,
	}
	v1mux.Handle("/conversations/{conversationID}/typing/live",
		httputil.MakeHTTPAPI("live_typing", tokenAPI, enableMetrics, live.serve),
	).Methods(http.MethodGet, http.MethodOptions)
}
