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

package typingserver_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/poll"

	"github.com/hearthchat/hearth/directory"
	"github.com/hearthchat/hearth/internal/caching"
	"github.com/hearthchat/hearth/internal/sqlutil"
	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/test"
	"github.com/hearthchat/hearth/test/testrig"
	"github.com/hearthchat/hearth/typingserver"
	"github.com/hearthchat/hearth/typingserver/api"
)

func TestTypingChangesReachTheNotifier(t *testing.T) {
	alice, bob := test.NewUser(t), test.NewUser(t)
	conv := test.NewConversation(t, alice, bob)

	test.WithAllStores(t, func(t *testing.T, dbType test.DBType) {
		cfg, processCtx, close := testrig.CreateConfig(t, dbType)
		defer close()
		natsInstance, _, _ := testrig.Prepare(processCtx, cfg)

		dir := directory.NewDirectory(&config.Directory{
			Users: []config.DirectoryUser{
				{ID: alice.ID, AccessToken: alice.AccessToken},
				{ID: bob.ID, AccessToken: bob.AccessToken},
			},
			Conversations: []config.DirectoryConversation{{ID: conv.ID, Members: conv.MemberIDs()}},
		})
		caches, err := caching.NewRistrettoCache(caching.MB, time.Minute, time.Second, false)
		require.NoError(t, err)
		cm := sqlutil.NewConnectionManager(processCtx, cfg.Global.DatabaseOptions)
		clock := clockwork.NewRealClock()

		n := typingserver.NewNotifier(processCtx, cfg, natsInstance, clock)
		typingAPI := typingserver.NewInternalAPI(processCtx, cfg, cm, natsInstance, caches, dir, dir, clock)
		ctx := context.Background()

		since := n.CurrentPosition(conv.ID)
		var upsertRes api.UpsertResponse
		require.NoError(t, typingAPI.Upsert(ctx, &api.UpsertRequest{ActorID: alice.ID, ConversationID: conv.ID}, &upsertRes))
		require.True(t, upsertRes.Applied)

		pos := n.WaitForChange(ctx, conv.ID, since, 5*time.Second)
		assert.Greater(t, pos, since)
		assert.Contains(t, n.TypingActors(conv.ID), alice.ID)

		var removeRes api.RemoveResponse
		require.NoError(t, typingAPI.Remove(ctx, &api.RemoveRequest{ActorID: alice.ID, ConversationID: conv.ID}, &removeRes))
		require.True(t, removeRes.Removed)
		poll.WaitOn(t, func(poll.LogT) poll.Result {
			if len(n.TypingActors(conv.ID)) == 0 {
				return poll.Success()
			}
			return poll.Continue("alice is still typing")
		}, poll.WithTimeout(5*time.Second), poll.WithDelay(10*time.Millisecond))
	})
}
