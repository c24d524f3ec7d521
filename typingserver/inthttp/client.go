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
	"context"
	"errors"
	"net/http"

	"github.com/hearthchat/hearth/internal/httputil"
	"github.com/hearthchat/hearth/typingserver/api"
)

// HTTP paths for the internal HTTP APIs
const (
	TypingServerUpsertPath   = "/typingserver/upsert"
	TypingServerRemovePath   = "/typingserver/remove"
	TypingServerListLivePath = "/typingserver/listLive"
)

// NewTypingServerClient creates a TypingServerInternalAPI implemented by talking to a HTTP POST API.
// If httpClient is nil an error is returned
func NewTypingServerClient(typingServerURL string, httpClient *http.Client) (api.TypingServerInternalAPI, error) {
	if httpClient == nil {
		return nil, errors.New("NewTypingServerClient: httpClient is <nil>")
	}
	return &httpTypingServerInternalAPI{
		typingServerURL: typingServerURL,
		httpClient:      httpClient,
	}, nil
}

type httpTypingServerInternalAPI struct {
	typingServerURL string
	httpClient      *http.Client
}

func (h *httpTypingServerInternalAPI) Upsert(
	ctx context.Context, request *api.UpsertRequest, response *api.UpsertResponse,
) error {
	err := httputil.CallInternalRPCAPI(
		"TypingServerUpsert", h.typingServerURL+TypingServerUpsertPath,
		h.httpClient, ctx, request, response,
	)
	return typedError(err, request.ActorID, request.ConversationID)
}

func (h *httpTypingServerInternalAPI) Remove(
	ctx context.Context, request *api.RemoveRequest, response *api.RemoveResponse,
) error {
	err := httputil.CallInternalRPCAPI(
		"TypingServerRemove", h.typingServerURL+TypingServerRemovePath,
		h.httpClient, ctx, request, response,
	)
	return typedError(err, request.ActorID, request.ConversationID)
}

func (h *httpTypingServerInternalAPI) ListLive(
	ctx context.Context, request *api.ListLiveRequest, response *api.ListLiveResponse,
) error {
	err := httputil.CallInternalRPCAPI(
		"TypingServerListLive", h.typingServerURL+TypingServerListLivePath,
		h.httpClient, ctx, request, response,
	)
	return typedError(err, request.ViewerID, request.ConversationID)
}

// typedError turns errors returned by the remote API back into the error
// types callers check for. The remote actor of an integrity error is not
// known here, so only the conversation is filled in.
func typedError(err error, actorID, conversationID string) error {
	var apiErr httputil.InternalAPIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Type {
	case "*api.NotAMemberError":
		return &api.NotAMemberError{ActorID: actorID, ConversationID: conversationID}
	case "*api.ReferentialIntegrityError":
		return &api.ReferentialIntegrityError{ConversationID: conversationID}
	case "*api.TransientStoreError":
		return &api.TransientStoreError{Op: "remote", Err: errors.New(apiErr.Message)}
	}
	return err
}
