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

package typingclient_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthchat/hearth/test"
	"github.com/hearthchat/hearth/typingclient"
	"github.com/hearthchat/hearth/typingserver/api"
)

func waitForSnapshot(t *testing.T, snapshots <-chan api.TypingSnapshot, want []string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case snapshot := <-snapshots:
			if assert.ObjectsAreEqual(want, typerIDs(&snapshot)) {
				return
			}
		case <-timeout:
			t.Fatalf("never saw typers %v", want)
		}
	}
}

func TestWatcher(t *testing.T) {
	for _, live := range []bool{true, false} {
		name := "long-poll"
		if live {
			name = "live"
		}
		t.Run(name, func(t *testing.T) {
			alice, bob := test.NewUser(t), test.NewUser(t)
			srv, conv := newServer(t, []*test.User{alice, bob})
			aliceClient := newClient(t, srv, alice)

			watcher := typingclient.NewWatcher(newClient(t, srv, bob))
			watcher.DisableLive = !live
			watcher.PollTimeout = 10 * time.Second

			ctx, cancel := context.WithCancel(context.Background())
			snapshots := make(chan api.TypingSnapshot, 16)
			watchErr := make(chan error, 1)
			go func() {
				watchErr <- watcher.Watch(ctx, conv.ID, func(s api.TypingSnapshot) {
					snapshots <- s
				})
			}()

			waitForSnapshot(t, snapshots, []string{})
			require.NoError(t, aliceClient.Upsert(context.Background(), conv.ID))
			waitForSnapshot(t, snapshots, []string{alice.ID})
			require.NoError(t, aliceClient.Remove(context.Background(), conv.ID))
			waitForSnapshot(t, snapshots, []string{})

			cancel()
			select {
			case err := <-watchErr:
				assert.True(t, errors.Is(err, context.Canceled), err)
			case <-time.After(5 * time.Second):
				t.Fatal("watcher did not stop")
			}
		})
	}
}

func TestWatcherNotAMember(t *testing.T) {
	alice, mallory := test.NewUser(t), test.NewUser(t)
	srv, conv := newServer(t, []*test.User{alice}, mallory)

	for _, disableLive := range []bool{false, true} {
		watcher := typingclient.NewWatcher(newClient(t, srv, mallory))
		watcher.DisableLive = disableLive
		err := watcher.Watch(context.Background(), conv.ID, func(api.TypingSnapshot) {
			t.Error("unexpected snapshot")
		})
		assert.True(t, errors.Is(err, api.ErrNotAMember), err)
	}
}
