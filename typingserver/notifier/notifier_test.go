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

package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/poll"

	"github.com/hearthchat/hearth/typingserver/api"
)

var t0 = time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)

func typing(clock clockwork.Clock, actorID, conversationID string, ttl time.Duration) api.TypingEvent {
	return api.TypingEvent{
		ActorID:        actorID,
		ConversationID: conversationID,
		Typing:         true,
		ExpiresAt:      spec.AsTimestamp(clock.Now().Add(ttl)),
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestNotifierWakesListenersOnChange(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	n := NewNotifier(clock)
	defer n.Stop()

	since := n.CurrentPosition("general")
	listener := n.GetListener(context.Background(), "general")
	defer listener.Close()
	ch := listener.GetNotifyChannel(since)
	assert.False(t, isClosed(ch))

	// changes elsewhere do not wake us
	n.OnTypingEvent(typing(clock, "alice", "random", 5*time.Second))
	assert.False(t, isClosed(ch))

	pos := n.OnTypingEvent(typing(clock, "alice", "general", 5*time.Second))
	assert.True(t, isClosed(ch))
	assert.Greater(t, pos, since)
	assert.Equal(t, pos, listener.GetPosition())

	// a listener that is already behind returns at once
	assert.True(t, isClosed(listener.GetNotifyChannel(since)))
	assert.False(t, isClosed(listener.GetNotifyChannel(pos)))
}

func TestNotifierWakesListenersAtExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	n := NewNotifier(clock)
	defer n.Stop()

	pos := n.OnTypingEvent(typing(clock, "alice", "general", 5*time.Second))
	listener := n.GetListener(context.Background(), "general")
	defer listener.Close()
	ch := listener.GetNotifyChannel(pos)

	clock.Advance(4 * time.Second)
	assert.False(t, isClosed(ch))
	assert.Contains(t, n.TypingActors("general"), "alice")

	clock.Advance(time.Second)
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if isClosed(ch) {
			return poll.Success()
		}
		return poll.Continue("waiting for expiry wakeup")
	}, poll.WithTimeout(time.Second))
	assert.Empty(t, n.TypingActors("general"))
	assert.Greater(t, n.CurrentPosition("general"), pos)
}

func TestNotifierRefreshReplacesExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	n := NewNotifier(clock)
	defer n.Stop()

	n.OnTypingEvent(typing(clock, "alice", "general", 5*time.Second))
	clock.Advance(4 * time.Second)
	refreshed := n.OnTypingEvent(typing(clock, "alice", "general", 5*time.Second))

	// the first expiry has passed but the refresh superseded it
	clock.Advance(2 * time.Second)
	assert.Equal(t, refreshed, n.CurrentPosition("general"))
	assert.WithinDuration(t, t0.Add(9*time.Second), n.TypingActors("general")["alice"], 0)

	clock.Advance(3 * time.Second)
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if n.CurrentPosition("general") > refreshed {
			return poll.Success()
		}
		return poll.Continue("waiting for refreshed expiry")
	}, poll.WithTimeout(time.Second))
	assert.Empty(t, n.TypingActors("general"))
}

func TestNotifierIgnoresLateHeartbeat(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	n := NewNotifier(clock)
	defer n.Stop()

	later := typing(clock, "alice", "general", 9*time.Second)
	earlier := typing(clock, "alice", "general", 5*time.Second)
	pos := n.OnTypingEvent(later)
	assert.Equal(t, pos, n.OnTypingEvent(earlier))
	assert.WithinDuration(t, later.ExpiresAt.Time(), n.TypingActors("general")["alice"], 0)
}

func TestNotifierRemove(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	n := NewNotifier(clock)
	defer n.Stop()

	typed := n.OnTypingEvent(typing(clock, "alice", "general", 5*time.Second))
	removed := n.OnTypingEvent(api.TypingEvent{ActorID: "alice", ConversationID: "general"})
	assert.Greater(t, removed, typed)
	assert.Empty(t, n.TypingActors("general"))

	// removing somebody we never saw still wakes viewers, as the store
	// may have known about them
	assert.Greater(t, n.OnTypingEvent(api.TypingEvent{ActorID: "bob", ConversationID: "general"}), removed)
}

func TestWaitForChange(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	n := NewNotifier(clock)
	defer n.Stop()
	since := n.CurrentPosition("general")

	done := make(chan int64)
	go func() {
		done <- n.WaitForChange(context.Background(), "general", since, 30*time.Second)
	}()
	clock.BlockUntil(1)
	pos := n.OnTypingEvent(typing(clock, "alice", "general", 5*time.Second))
	select {
	case got := <-done:
		assert.Equal(t, pos, got)
	case <-time.After(time.Second):
		t.Fatal("WaitForChange did not return after a change")
	}

	// with nothing happening, the timeout ends the wait
	go func() {
		done <- n.WaitForChange(context.Background(), "general", pos, 30*time.Second)
	}()
	clock.BlockUntil(2) // alice's expiry timer and the wait timer
	clock.Advance(30 * time.Second)
	select {
	case got := <-done:
		// alice lapsed during the wait, which is itself a change
		require.GreaterOrEqual(t, got, pos)
	case <-time.After(time.Second):
		t.Fatal("WaitForChange did not time out")
	}
}
