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
	"runtime"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/matrix-org/util"
)

// ConversationStream lets any number of viewers of one conversation wait for
// its typing state to change. Each change closes the current signal channel
// and replaces it, so everybody waiting wakes up at once.
type ConversationStream struct {
	ConversationID string
	clock          clockwork.Clock
	// The lock that protects changes to this struct
	lock sync.Mutex
	// Closed when there is an update.
	signalChannel chan struct{}
	// The position of the last change to this conversation
	pos int64
	// The last time when we had some listeners waiting
	timeOfLastChannel time.Time
	// The number of listeners waiting
	numWaiting uint
}

// ConversationStreamListener allows a request to wait for changes in a
// conversation. It must be closed after use.
type ConversationStreamListener struct {
	stream    *ConversationStream
	hasClosed bool
}

func NewConversationStream(conversationID string, currPos int64, clock clockwork.Clock) *ConversationStream {
	return &ConversationStream{
		ConversationID:    conversationID,
		clock:             clock,
		timeOfLastChannel: clock.Now(),
		pos:               currPos,
		signalChannel:     make(chan struct{}),
	}
}

func (s *ConversationStream) GetListener(ctx context.Context) *ConversationStreamListener {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.numWaiting++ // decremented again by Close

	listener := &ConversationStreamListener{
		stream: s,
	}
	runtime.SetFinalizer(listener, func(l *ConversationStreamListener) {
		if !l.hasClosed {
			util.GetLogger(ctx).Warn("Didn't call Close on ConversationStreamListener")
			l.Close()
		}
	})
	return listener
}

// Broadcast a new position for this conversation.
func (s *ConversationStream) Broadcast(pos int64) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.pos = pos
	close(s.signalChannel)
	s.signalChannel = make(chan struct{})
}

// NumWaiting returns the number of listeners that have not been closed yet.
func (s *ConversationStream) NumWaiting() uint {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.numWaiting
}

// TimeOfLastNonEmpty returns when the stream last had a listener, or now if
// it has one at the moment.
func (s *ConversationStream) TimeOfLastNonEmpty() time.Time {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.numWaiting > 0 {
		return s.clock.Now()
	}
	return s.timeOfLastChannel
}

// GetPosition returns the last position the stream was notified about.
func (l *ConversationStreamListener) GetPosition() int64 {
	l.stream.lock.Lock()
	defer l.stream.lock.Unlock()
	return l.stream.pos
}

// GetNotifyChannel returns a channel that is closed once the conversation
// changes after sincePos. If it already has, the channel is closed already.
func (l *ConversationStreamListener) GetNotifyChannel(sincePos int64) <-chan struct{} {
	l.stream.lock.Lock()
	defer l.stream.lock.Unlock()

	if l.stream.pos > sincePos {
		closedChannel := make(chan struct{})
		close(closedChannel)
		return closedChannel
	}
	return l.stream.signalChannel
}

func (l *ConversationStreamListener) Close() {
	l.stream.lock.Lock()
	defer l.stream.lock.Unlock()

	if !l.hasClosed {
		l.stream.numWaiting--
		l.stream.timeOfLastChannel = l.stream.clock.Now()
	}
	l.hasClosed = true
}
