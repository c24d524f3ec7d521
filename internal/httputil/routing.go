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

package httputil

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Routers holds the routers each component registers its endpoints on.
type Routers struct {
	Client   *mux.Router
	Internal *mux.Router
	Monitor  *mux.Router
}

func NewRouters() Routers {
	r := Routers{
		Client:   mux.NewRouter().SkipClean(true).PathPrefix(PublicClientPathPrefix).Subrouter().UseEncodedPath(),
		Internal: mux.NewRouter().SkipClean(true).PathPrefix(InternalPathPrefix).Subrouter().UseEncodedPath(),
		Monitor:  mux.NewRouter().SkipClean(true).PathPrefix(MonitorPathPrefix).Subrouter().UseEncodedPath(),
	}
	r.Client.NotFoundHandler = NotFoundCORSHandler
	r.Client.MethodNotAllowedHandler = NotAllowedHandler
	return r
}

var NotAllowedHandler = WrapHandlerInCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusMethodNotAllowed)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"errcode":"M_UNRECOGNIZED","error":"Unrecognized request"}`)) // nolint:misspell
}))

var NotFoundCORSHandler = WrapHandlerInCORS(http.NotFoundHandler())
