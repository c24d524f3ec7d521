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

package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/typingserver/api"
)

func newTestDirectory() *Directory {
	return NewDirectory(&config.Directory{
		Users: []config.DirectoryUser{
			{ID: "alice", DisplayName: "Alice", AccessToken: "a"},
			{ID: "bob", AccessToken: "b"},
		},
		Conversations: []config.DirectoryConversation{
			{ID: "general", Members: []string{"alice", "bob", "ghost"}},
		},
	})
}

func TestQueryAccessToken(t *testing.T) {
	d := newTestDirectory()
	ctx := context.Background()

	var res api.QueryAccessTokenResponse
	require.NoError(t, d.QueryAccessToken(ctx, &api.QueryAccessTokenRequest{AccessToken: "a"}, &res))
	assert.Equal(t, "alice", res.ActorID)

	res = api.QueryAccessTokenResponse{}
	require.NoError(t, d.QueryAccessToken(ctx, &api.QueryAccessTokenRequest{AccessToken: "nope"}, &res))
	assert.Empty(t, res.ActorID)
}

func TestQueryMembership(t *testing.T) {
	d := newTestDirectory()
	ctx := context.Background()

	testCases := []struct {
		actor, conversation string
		want                bool
	}{
		{"alice", "general", true},
		{"ghost", "general", true},
		{"carol", "general", false},
		{"alice", "random", false},
	}
	for _, tc := range testCases {
		var res api.QueryMembershipResponse
		require.NoError(t, d.QueryMembership(ctx, &api.QueryMembershipRequest{
			ActorID: tc.actor, ConversationID: tc.conversation,
		}, &res))
		assert.Equal(t, tc.want, res.IsMember, "%s in %s", tc.actor, tc.conversation)
	}

	d.Leave("alice", "general")
	var res api.QueryMembershipResponse
	require.NoError(t, d.QueryMembership(ctx, &api.QueryMembershipRequest{
		ActorID: "alice", ConversationID: "general",
	}, &res))
	assert.False(t, res.IsMember)
}

func TestQueryDisplayIdentity(t *testing.T) {
	d := newTestDirectory()
	ctx := context.Background()

	var res api.QueryDisplayIdentityResponse
	require.NoError(t, d.QueryDisplayIdentity(ctx, &api.QueryDisplayIdentityRequest{ActorID: "alice"}, &res))
	assert.True(t, res.Found)
	assert.Equal(t, api.DisplayIdentity{UserID: "alice", DisplayName: "Alice"}, res.Identity)

	// display name falls back to the ID
	res = api.QueryDisplayIdentityResponse{}
	require.NoError(t, d.QueryDisplayIdentity(ctx, &api.QueryDisplayIdentityRequest{ActorID: "bob"}, &res))
	assert.Equal(t, "bob", res.Identity.DisplayName)

	// members without a user entry are not found
	res = api.QueryDisplayIdentityResponse{}
	require.NoError(t, d.QueryDisplayIdentity(ctx, &api.QueryDisplayIdentityRequest{ActorID: "ghost"}, &res))
	assert.False(t, res.Found)

	d.RemoveUser("alice")
	res = api.QueryDisplayIdentityResponse{}
	require.NoError(t, d.QueryDisplayIdentity(ctx, &api.QueryDisplayIdentityRequest{ActorID: "alice"}, &res))
	assert.False(t, res.Found)
	var tokenRes api.QueryAccessTokenResponse
	require.NoError(t, d.QueryAccessToken(ctx, &api.QueryAccessTokenRequest{AccessToken: "a"}, &tokenRes))
	assert.Empty(t, tokenRes.ActorID)
}
