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
	"fmt"
	"net/http"
	"strings"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/hearthchat/hearth/typingserver/api"
)

// VerifyActorFromRequest authenticates the HTTP request and returns the ID of
// the actor the access token belongs to. On failure it returns a JSON error
// response which can be sent to the client.
func VerifyActorFromRequest(
	req *http.Request, tokenAPI api.QueryAccessTokenAPI,
) (string, *util.JSONResponse) {
	token, err := ExtractAccessToken(req)
	if err != nil {
		return "", &util.JSONResponse{
			Code: http.StatusUnauthorized,
			JSON: spec.MissingToken(err.Error()),
		}
	}
	var res api.QueryAccessTokenResponse
	if err = tokenAPI.QueryAccessToken(req.Context(), &api.QueryAccessTokenRequest{
		AccessToken: token,
	}, &res); err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("tokenAPI.QueryAccessToken failed")
		return "", &util.JSONResponse{
			Code: http.StatusInternalServerError,
			JSON: spec.InternalServerError{},
		}
	}
	if res.ActorID == "" {
		return "", &util.JSONResponse{
			Code: http.StatusUnauthorized,
			JSON: spec.UnknownToken("Unknown token"),
		}
	}
	return res.ActorID, nil
}

// ExtractAccessToken from a request, or return an error detailing what went
// wrong. The query parameter exists for websocket clients, which cannot set
// headers from a browser.
func ExtractAccessToken(req *http.Request) (string, error) {
	authBearer := req.Header.Get("Authorization")
	queryToken := req.URL.Query().Get("access_token")
	if authBearer != "" && queryToken != "" {
		return "", fmt.Errorf("mixing Authorization headers and access_token query parameters")
	}

	if queryToken != "" {
		return queryToken, nil
	}

	if authBearer != "" {
		parts := strings.SplitN(authBearer, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", fmt.Errorf("invalid Authorization header")
		}
		return parts[1], nil
	}

	return "", fmt.Errorf("missing access token")
}
