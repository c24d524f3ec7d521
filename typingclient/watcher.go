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
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hearthchat/hearth/typingserver/api"
)

const (
	DefaultPollTimeout   = 30 * time.Second
	DefaultRetryInterval = 2 * time.Second
)

// Watcher follows who is typing in a conversation. It prefers the live
// socket and falls back to long-polling when the socket cannot be opened.
type Watcher struct {
	Client *Client
	Clock  clockwork.Clock
	// PollTimeout is how long the server may hold each long-poll.
	PollTimeout time.Duration
	// RetryInterval is the wait after a failed request. It should stay
	// well under the indicator TTL so that a viewer does not miss a typer.
	RetryInterval time.Duration
	// DisableLive skips the socket and long-polls only.
	DisableLive bool
}

func NewWatcher(client *Client) *Watcher {
	return &Watcher{
		Client:        client,
		Clock:         clockwork.NewRealClock(),
		PollTimeout:   DefaultPollTimeout,
		RetryInterval: DefaultRetryInterval,
	}
}

// Watch calls f with every snapshot of the conversation until ctx is done or
// the user turns out not to be a member, which returns api.ErrNotAMember.
// Other failures are logged and retried.
func (w *Watcher) Watch(ctx context.Context, conversationID string, f func(api.TypingSnapshot)) error {
	logger := logrus.WithField("conversation_id", conversationID)
	live := !w.DisableLive
	for {
		var err error
		if live {
			err = w.watchLive(ctx, conversationID, f)
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.Code != http.StatusForbidden {
				logger.WithError(err).Info("Live typing unavailable, falling back to long-polling")
				live = false
				continue
			}
		} else {
			err = w.poll(ctx, conversationID, f)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, api.ErrNotAMember) {
			return err
		}
		logger.WithError(err).Warn("Lost typing updates, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.Clock.After(w.RetryInterval):
		}
	}
}

// watchLive reads snapshots off the live socket until it fails.
func (w *Watcher) watchLive(ctx context.Context, conversationID string, f func(api.TypingSnapshot)) error {
	conn, err := w.Client.DialLive(ctx, conversationID)
	if err != nil {
		return err
	}
	defer conn.Close() // nolint: errcheck

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var snapshot api.TypingSnapshot
		if err = conn.ReadJSON(&snapshot); err != nil {
			if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				return errors.Wrap(api.ErrNotAMember, "live typing closed")
			}
			return errors.Wrap(err, "conn.ReadJSON")
		}
		f(snapshot)
	}
}

// poll long-polls until a request fails.
func (w *Watcher) poll(ctx context.Context, conversationID string, f func(api.TypingSnapshot)) error {
	since := int64(-1)
	for {
		snapshot, err := w.Client.ListLive(ctx, conversationID, since, w.PollTimeout)
		if err != nil {
			return err
		}
		f(*snapshot)
		since = snapshot.Position
	}
}
