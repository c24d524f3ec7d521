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

package inthttp_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthchat/hearth/internal/httputil"
	"github.com/hearthchat/hearth/typingserver/api"
	"github.com/hearthchat/hearth/typingserver/inthttp"
)

type stubAPI struct {
	err error
}

func (s *stubAPI) Upsert(ctx context.Context, req *api.UpsertRequest, res *api.UpsertResponse) error {
	if s.err != nil {
		return s.err
	}
	res.ExpiresAt = 5000
	res.Applied = true
	return nil
}

func (s *stubAPI) Remove(ctx context.Context, req *api.RemoveRequest, res *api.RemoveResponse) error {
	if s.err != nil {
		return s.err
	}
	res.Removed = true
	return nil
}

func (s *stubAPI) ListLive(ctx context.Context, req *api.ListLiveRequest, res *api.ListLiveResponse) error {
	if s.err != nil {
		return s.err
	}
	res.Typers = []api.DisplayIdentity{{UserID: "alice", DisplayName: "Alice"}}
	res.NextExpiry = spec.Timestamp(5000)
	return nil
}

func newClient(t *testing.T, stub *stubAPI) api.TypingServerInternalAPI {
	t.Helper()
	routers := httputil.NewRouters()
	inthttp.AddRoutes(stub, routers.Internal)
	srv := httptest.NewServer(routers.Internal)
	t.Cleanup(srv.Close)

	client, err := inthttp.NewTypingServerClient(srv.URL, srv.Client())
	require.NoError(t, err)
	return client
}

func TestRoundTrip(t *testing.T) {
	client := newClient(t, &stubAPI{})
	ctx := context.Background()

	var upsertRes api.UpsertResponse
	require.NoError(t, client.Upsert(ctx, &api.UpsertRequest{ActorID: "alice", ConversationID: "general"}, &upsertRes))
	assert.Equal(t, api.UpsertResponse{ExpiresAt: 5000, Applied: true}, upsertRes)

	var removeRes api.RemoveResponse
	require.NoError(t, client.Remove(ctx, &api.RemoveRequest{ActorID: "alice", ConversationID: "general"}, &removeRes))
	assert.True(t, removeRes.Removed)

	var listRes api.ListLiveResponse
	require.NoError(t, client.ListLive(ctx, &api.ListLiveRequest{ViewerID: "bob", ConversationID: "general"}, &listRes))
	assert.Equal(t, []api.DisplayIdentity{{UserID: "alice", DisplayName: "Alice"}}, listRes.Typers)
	assert.Equal(t, spec.Timestamp(5000), listRes.NextExpiry)
}

func TestErrorsKeepTheirType(t *testing.T) {
	ctx := context.Background()

	client := newClient(t, &stubAPI{err: &api.NotAMemberError{ActorID: "mallory", ConversationID: "general"}})
	err := client.Upsert(ctx, &api.UpsertRequest{ActorID: "mallory", ConversationID: "general"}, &api.UpsertResponse{})
	assert.ErrorIs(t, err, api.ErrNotAMember)
	var notAMember *api.NotAMemberError
	require.ErrorAs(t, err, &notAMember)
	assert.Equal(t, "mallory", notAMember.ActorID)

	client = newClient(t, &stubAPI{err: &api.ReferentialIntegrityError{ActorID: "ghost", ConversationID: "general"}})
	err = client.ListLive(ctx, &api.ListLiveRequest{ViewerID: "bob", ConversationID: "general"}, &api.ListLiveResponse{})
	var integrityErr *api.ReferentialIntegrityError
	require.ErrorAs(t, err, &integrityErr)
	assert.Equal(t, "general", integrityErr.ConversationID)

	client = newClient(t, &stubAPI{err: &api.TransientStoreError{Op: "remove", Err: errors.New("timeout")}})
	err = client.Remove(ctx, &api.RemoveRequest{ActorID: "alice", ConversationID: "general"}, &api.RemoveResponse{})
	var storeErr *api.TransientStoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Contains(t, storeErr.Error(), "timeout")

	client = newClient(t, &stubAPI{err: errors.New("something else")})
	err = client.Remove(ctx, &api.RemoveRequest{ActorID: "alice", ConversationID: "general"}, &api.RemoveResponse{})
	var apiErr httputil.InternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "*errors.errorString", apiErr.Type)
}
