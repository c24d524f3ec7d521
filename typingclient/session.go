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

// Package typingclient is the client half of typing presence: a Session
// drives heartbeats for one open conversation view, and a Watcher follows
// who else is typing in it.
package typingclient

import (
	"context"
	"sync"
	"time"

	"github.com/Arceliar/phony"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Transport writes the local user's typing indicator.
type Transport interface {
	Upsert(ctx context.Context, conversationID string) error
	Remove(ctx context.Context, conversationID string) error
}

type State int

const (
	Idle State = iota
	Typing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Typing:
		return "typing"
	}
	return "unknown"
}

const (
	DefaultHeartbeatInterval = 4 * time.Second
	DefaultInactivityTimeout = 2 * time.Second
)

type event int

const (
	eventInput event = iota
	eventBlur
	eventSubmit
	eventClose
)

func (e event) String() string {
	switch e {
	case eventInput:
		return "input"
	case eventBlur:
		return "blur"
	case eventSubmit:
		return "submit"
	case eventClose:
		return "close"
	}
	return "unknown"
}

type command struct {
	event event
	done  chan struct{}
}

// Session owns the typing state of one conversation view. Its state and
// timers are owned by a single goroutine, which Close stops. Requests are
// queued in order on an inbox of their own, so OnInput, OnBlur and OnSubmit
// never wait on the network.
//
// While typing, the indicator is refreshed every HeartbeatInterval. Input
// only pushes back the inactivity deadline. Inactivity, blur, submit and
// Close all stop typing and remove the indicator. Failed requests are logged
// and never retried: the next heartbeat repeats an upsert, and the server's
// TTL clears an indicator whose removal was lost.
type Session struct {
	ConversationID    string
	transport         Transport
	clock             clockwork.Clock
	heartbeatInterval time.Duration
	inactivityTimeout time.Duration
	logger            *logrus.Entry

	commands  chan command
	done      chan struct{}
	closeOnce sync.Once

	requests phony.Inbox

	mu    sync.Mutex
	state State

	// owned by the run loop
	heartbeat  clockwork.Ticker
	inactivity clockwork.Timer
}

type SessionOption func(*Session)

func WithClock(clock clockwork.Clock) SessionOption {
	return func(s *Session) {
		s.clock = clock
	}
}

func WithHeartbeatInterval(d time.Duration) SessionOption {
	return func(s *Session) {
		s.heartbeatInterval = d
	}
}

func WithInactivityTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.inactivityTimeout = d
	}
}

// NewSession starts a session for the given conversation. It must be closed
// when the view goes away.
func NewSession(conversationID string, transport Transport, opts ...SessionOption) *Session {
	s := &Session{
		ConversationID:    conversationID,
		transport:         transport,
		clock:             clockwork.NewRealClock(),
		heartbeatInterval: DefaultHeartbeatInterval,
		inactivityTimeout: DefaultInactivityTimeout,
		commands:          make(chan command),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logrus.WithField("conversation_id", conversationID)
	go s.run()
	return s
}

// OnInput records a change to the message being composed.
func (s *Session) OnInput() { s.send(eventInput) }

// OnBlur records that the input lost focus.
func (s *Session) OnBlur() { s.send(eventBlur) }

// OnSubmit records that the message was sent.
func (s *Session) OnSubmit() { s.send(eventSubmit) }

// Close stops typing if necessary and releases the session's timers. It
// returns once every queued request, including the final removal, has been
// attempted. Each request is bounded by the heartbeat interval.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.send(eventClose)
	})
	<-s.done
	phony.Block(&s.requests, func() {})
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// send hands an event to the run loop and waits for the state change. The
// loop does no I/O, so this returns promptly. Events sent after Close are
// dropped.
func (s *Session) send(ev event) {
	cmd := command{event: ev, done: make(chan struct{})}
	select {
	case s.commands <- cmd:
		<-cmd.done
	case <-s.done:
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		var heartbeat, inactivity <-chan time.Time
		if s.heartbeat != nil {
			heartbeat = s.heartbeat.Chan()
		}
		if s.inactivity != nil {
			inactivity = s.inactivity.Chan()
		}

		select {
		case cmd := <-s.commands:
			stop := s.handle(cmd.event)
			close(cmd.done)
			if stop {
				return
			}
		case <-heartbeat:
			s.upsert("heartbeat")
		case <-inactivity:
			s.stopTyping("inactivity")
		}
	}
}

// handle applies an event and reports whether the loop should stop.
func (s *Session) handle(ev event) bool {
	switch ev {
	case eventInput:
		if s.State() == Idle {
			s.startTyping()
		} else {
			s.resetInactivity()
		}
	case eventBlur, eventSubmit:
		s.stopTyping(ev.String())
	case eventClose:
		s.stopTyping(ev.String())
		return true
	}
	return false
}

func (s *Session) startTyping() {
	s.setState(Typing)
	s.upsert("start")
	s.heartbeat = s.clock.NewTicker(s.heartbeatInterval)
	s.resetInactivity()
}

// resetInactivity replaces the inactivity timer rather than resetting it, so
// that a deadline which fired just now cannot be delivered late.
func (s *Session) resetInactivity() {
	if s.inactivity != nil {
		s.inactivity.Stop()
	}
	s.inactivity = s.clock.NewTimer(s.inactivityTimeout)
}

func (s *Session) stopTyping(reason string) {
	if s.State() != Typing {
		return
	}
	if s.heartbeat != nil {
		s.heartbeat.Stop()
		s.heartbeat = nil
	}
	if s.inactivity != nil {
		s.inactivity.Stop()
		s.inactivity = nil
	}
	s.setState(Idle)
	s.enqueue(reason, "Failed to remove typing indicator", s.transport.Remove)
}

func (s *Session) upsert(reason string) {
	s.enqueue(reason, "Failed to refresh typing indicator", s.transport.Upsert)
}

// enqueue queues a request behind any still in flight. The deadline starts
// now, so a request never outlives the next heartbeat and a backlog behind a
// stalled server drains instead of piling up.
func (s *Session) enqueue(reason, failure string, call func(context.Context, string) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.heartbeatInterval)
	s.requests.Act(nil, func() {
		defer cancel()
		if err := call(ctx, s.ConversationID); err != nil {
			s.logger.WithError(err).WithField("reason", reason).Warn(failure)
		}
	})
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}
