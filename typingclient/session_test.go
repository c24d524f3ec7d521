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

package typingclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"gotest.tools/v3/poll"
)

type recordingTransport struct {
	mu      sync.Mutex
	upserts int
	removes int
	err     error
}

func (r *recordingTransport) Upsert(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	return r.err
}

func (r *recordingTransport) Remove(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes++
	return r.err
}

func (r *recordingTransport) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts, r.removes
}

func (r *recordingTransport) waitFor(t *testing.T, upserts, removes int) {
	t.Helper()
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		u, rm := r.counts()
		if u == upserts && rm == removes {
			return poll.Success()
		}
		return poll.Continue("got %d upserts and %d removes, want %d and %d", u, rm, upserts, removes)
	}, poll.WithTimeout(2*time.Second), poll.WithDelay(5*time.Millisecond))
}

func newTestSession(t *testing.T) (*Session, *recordingTransport, clockwork.FakeClock) {
	transport := &recordingTransport{}
	clock := clockwork.NewFakeClock()
	s := NewSession("conv", transport, WithClock(clock))
	t.Cleanup(s.Close)
	return s, transport, clock
}

func TestFirstInputStartsTyping(t *testing.T) {
	s, transport, _ := newTestSession(t)
	assert.Equal(t, Idle, s.State())

	s.OnInput()
	assert.Equal(t, Typing, s.State())
	transport.waitFor(t, 1, 0)

	// more input while typing does not send anything
	s.OnInput()
	s.OnInput()
	transport.waitFor(t, 1, 0)
}

func TestContinuousInputHeartbeats(t *testing.T) {
	s, transport, clock := newTestSession(t)

	s.OnInput()
	for i := 0; i < 8; i++ {
		clock.Advance(time.Second)
		s.OnInput()
	}
	// the start plus heartbeats at 4s and 8s
	transport.waitFor(t, 3, 0)
	assert.Equal(t, Typing, s.State())

	clock.Advance(DefaultInactivityTimeout)
	transport.waitFor(t, 3, 1)
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if s.State() == Idle {
			return poll.Success()
		}
		return poll.Continue("still typing")
	}, poll.WithTimeout(2*time.Second))
}

func TestBlurStopsTyping(t *testing.T) {
	s, transport, clock := newTestSession(t)

	s.OnInput()
	clock.Advance(time.Second)
	s.OnBlur()
	assert.Equal(t, Idle, s.State())
	transport.waitFor(t, 1, 1)

	// blurring again has nothing to remove
	s.OnBlur()
	transport.waitFor(t, 1, 1)

	// and typing can start over
	s.OnInput()
	transport.waitFor(t, 2, 1)
}

func TestSubmitStopsTyping(t *testing.T) {
	s, transport, _ := newTestSession(t)

	s.OnInput()
	s.OnSubmit()
	assert.Equal(t, Idle, s.State())
	transport.waitFor(t, 1, 1)
}

func TestInactivityStopsTyping(t *testing.T) {
	s, transport, clock := newTestSession(t)

	s.OnInput()
	clock.Advance(DefaultInactivityTimeout)
	transport.waitFor(t, 1, 1)
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if s.State() == Idle {
			return poll.Success()
		}
		return poll.Continue("still typing")
	}, poll.WithTimeout(2*time.Second))

	// no heartbeat once idle
	clock.Advance(DefaultHeartbeatInterval * 2)
	transport.waitFor(t, 1, 1)
}

func TestCloseWhileTyping(t *testing.T) {
	transport := &recordingTransport{}
	s := NewSession("conv", transport, WithClock(clockwork.NewFakeClock()))

	s.OnInput()
	s.Close()
	u, rm := transport.counts()
	assert.Equal(t, 1, u)
	assert.Equal(t, 1, rm)

	// closing twice is safe and events after closing are dropped
	s.Close()
	s.OnInput()
	u, rm = transport.counts()
	assert.Equal(t, 1, u)
	assert.Equal(t, 1, rm)
}

func TestCloseWhileIdle(t *testing.T) {
	transport := &recordingTransport{}
	s := NewSession("conv", transport, WithClock(clockwork.NewFakeClock()))
	s.Close()
	u, rm := transport.counts()
	assert.Equal(t, 0, u)
	assert.Equal(t, 0, rm)
}

func TestTransportErrorsAreTolerated(t *testing.T) {
	s, transport, clock := newTestSession(t)
	transport.err = errors.New("connection refused")

	s.OnInput()
	assert.Equal(t, Typing, s.State())
	clock.Advance(time.Second)
	s.OnInput()
	s.OnBlur()
	assert.Equal(t, Idle, s.State())
	transport.waitFor(t, 1, 1)
}

func TestCustomIntervals(t *testing.T) {
	transport := &recordingTransport{}
	clock := clockwork.NewFakeClock()
	s := NewSession("conv", transport,
		WithClock(clock),
		WithHeartbeatInterval(time.Second),
		WithInactivityTimeout(10*time.Second),
	)
	t.Cleanup(s.Close)

	s.OnInput()
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		transport.waitFor(t, i+2, 0)
	}
}

// stalledTransport holds every request until released or timed out.
type stalledTransport struct {
	recordingTransport
	release chan struct{}
}

func (s *stalledTransport) Upsert(ctx context.Context, conversationID string) error {
	s.wait(ctx)
	return s.recordingTransport.Upsert(ctx, conversationID)
}

func (s *stalledTransport) Remove(ctx context.Context, conversationID string) error {
	s.wait(ctx)
	return s.recordingTransport.Remove(ctx, conversationID)
}

func (s *stalledTransport) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-s.release:
	}
}

func TestEventsDoNotWaitForTheServer(t *testing.T) {
	transport := &stalledTransport{release: make(chan struct{})}
	s := NewSession("conv", transport, WithClock(clockwork.NewFakeClock()))

	start := time.Now()
	s.OnInput()
	assert.Equal(t, Typing, s.State())
	s.OnInput()
	s.OnSubmit()
	assert.Equal(t, Idle, s.State())
	s.OnInput()
	s.OnBlur()
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// nothing has reached the server yet
	u, rm := transport.counts()
	assert.Equal(t, 0, u)
	assert.Equal(t, 0, rm)

	// queued requests go out in order once it answers
	close(transport.release)
	transport.waitFor(t, 2, 2)
	s.Close()
}

func TestStalledRequestsTimeOut(t *testing.T) {
	transport := &stalledTransport{release: make(chan struct{})}
	s := NewSession("conv", transport,
		WithClock(clockwork.NewFakeClock()),
		WithHeartbeatInterval(50*time.Millisecond),
	)

	s.OnInput()
	s.OnBlur()
	// both requests give up at their deadline and Close does not hang
	s.Close()
	u, rm := transport.counts()
	assert.Equal(t, 1, u)
	assert.Equal(t, 1, rm)
}
