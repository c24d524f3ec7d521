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

// Package notifier wakes up viewers of a conversation when its typing state
// changes, either because an indicator was written or removed, or because
// one has just lapsed.
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/hearthchat/hearth/typingserver/api"
)

var wakeups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hearth",
		Subsystem: "typingserver",
		Name:      "notifier_wakeups_total",
		Help:      "Number of times viewers of a conversation were woken up",
	},
	[]string{"reason"},
)

// An idle conversation is forgotten after this long without listeners.
const streamIdleTimeout = time.Minute

type typer struct {
	expiresAt time.Time
	timer     clockwork.Timer
}

type conversationData struct {
	position int64
	typers   map[string]*typer
	stream   *ConversationStream
}

// Notifier tracks, for every conversation somebody is typing in or watching,
// a position that increases whenever the set of live typers may have changed.
// Positions come from a single counter, so a conversation that is forgotten
// and seen again never goes backwards.
type Notifier struct {
	lock           sync.Mutex
	clock          clockwork.Clock
	latestPosition int64
	conversations  map[string]*conversationData
	lastCleanUp    time.Time
}

func NewNotifier(clock clockwork.Clock) *Notifier {
	return &Notifier{
		clock:         clock,
		conversations: make(map[string]*conversationData),
		lastCleanUp:   clock.Now(),
	}
}

// conversation must be called with the lock held.
func (n *Notifier) conversation(conversationID string) *conversationData {
	data, ok := n.conversations[conversationID]
	if !ok {
		data = &conversationData{
			position: n.latestPosition,
			typers:   make(map[string]*typer),
			stream:   NewConversationStream(conversationID, n.latestPosition, n.clock),
		}
		n.conversations[conversationID] = data
	}
	return data
}

// advance must be called with the lock held.
func (n *Notifier) advance(data *conversationData, reason string) int64 {
	n.latestPosition++
	data.position = n.latestPosition
	data.stream.Broadcast(data.position)
	wakeups.WithLabelValues(reason).Inc()
	return data.position
}

// OnTypingEvent records a change to an indicator and wakes up everybody
// watching the conversation. Returns the conversation's new position.
func (n *Notifier) OnTypingEvent(ev api.TypingEvent) int64 {
	n.lock.Lock()
	defer n.lock.Unlock()
	defer n.removeIdleConversations()

	data := n.conversation(ev.ConversationID)
	existing, hasExisting := data.typers[ev.ActorID]
	if ev.Typing {
		expiresAt := ev.ExpiresAt.Time()
		if hasExisting && existing.expiresAt.After(expiresAt) {
			// An older heartbeat arrived late; the indicator we know
			// about is already later.
			return data.position
		}
		if hasExisting {
			existing.timer.Stop()
		}
		if until := expiresAt.Sub(n.clock.Now()); until > 0 {
			actorID, conversationID := ev.ActorID, ev.ConversationID
			data.typers[ev.ActorID] = &typer{
				expiresAt: expiresAt,
				timer: n.clock.AfterFunc(until, func() {
					n.expire(actorID, conversationID, expiresAt)
				}),
			}
		} else {
			delete(data.typers, ev.ActorID)
		}
	} else if hasExisting {
		existing.timer.Stop()
		delete(data.typers, ev.ActorID)
	}
	// Always advance: the store may know about indicators that this
	// process never saw an event for.
	return n.advance(data, "change")
}

// expire is called when an indicator's timer fires. The indicator may have
// been refreshed or removed since, in which case nothing happens.
func (n *Notifier) expire(actorID, conversationID string, expiresAt time.Time) {
	n.lock.Lock()
	defer n.lock.Unlock()

	data, ok := n.conversations[conversationID]
	if !ok {
		return
	}
	t, ok := data.typers[actorID]
	if !ok || !t.expiresAt.Equal(expiresAt) {
		return
	}
	delete(data.typers, actorID)
	logrus.WithFields(logrus.Fields{
		"user_id":         actorID,
		"conversation_id": conversationID,
	}).Trace("Typing indicator lapsed")
	n.advance(data, "expiry")
}

// CurrentPosition returns the position of the conversation, which is the
// value to pass as since to wait for the next change.
func (n *Notifier) CurrentPosition(conversationID string) int64 {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.conversation(conversationID).position
}

// GetListener returns a listener for changes to the conversation. It must be
// closed when the caller is done waiting.
func (n *Notifier) GetListener(ctx context.Context, conversationID string) *ConversationStreamListener {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.conversation(conversationID).stream.GetListener(ctx)
}

// WaitForChange blocks until the conversation moves past since, the timeout
// elapses or ctx is done, and returns the position at that point.
func (n *Notifier) WaitForChange(ctx context.Context, conversationID string, since int64, timeout time.Duration) int64 {
	listener := n.GetListener(ctx, conversationID)
	defer listener.Close()

	timer := n.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-listener.GetNotifyChannel(since):
	case <-timer.Chan():
	case <-ctx.Done():
	}
	return listener.GetPosition()
}

// TypingActors returns who this process believes is typing in the
// conversation. It is only used for diagnostics; the store is authoritative.
func (n *Notifier) TypingActors(conversationID string) map[string]time.Time {
	n.lock.Lock()
	defer n.lock.Unlock()
	data, ok := n.conversations[conversationID]
	if !ok {
		return nil
	}
	result := make(map[string]time.Time, len(data.typers))
	for actorID, t := range data.typers {
		result[actorID] = t.expiresAt
	}
	return result
}

// Stop cancels every pending expiry timer.
func (n *Notifier) Stop() {
	n.lock.Lock()
	defer n.lock.Unlock()
	for _, data := range n.conversations {
		for _, t := range data.typers {
			t.timer.Stop()
		}
	}
}

// removeIdleConversations forgets conversations that nobody is typing in
// and nobody has watched for a while. Must be called with the lock held.
func (n *Notifier) removeIdleConversations() {
	now := n.clock.Now()
	if now.Sub(n.lastCleanUp) < streamIdleTimeout {
		return
	}
	n.lastCleanUp = now
	for conversationID, data := range n.conversations {
		if len(data.typers) > 0 || data.stream.NumWaiting() > 0 {
			continue
		}
		if now.Sub(data.stream.TimeOfLastNonEmpty()) >= streamIdleTimeout {
			delete(n.conversations, conversationID)
		}
	}
}
