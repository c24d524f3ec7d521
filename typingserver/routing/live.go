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

package routing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/hearthchat/hearth/internal/httputil"
	"github.com/hearthchat/hearth/typingserver/api"
	"github.com/hearthchat/hearth/typingserver/notifier"
)

const (
	liveWriteTimeout = 10 * time.Second
	livePingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Access is by token, not by cookie, so any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveTyping handles GET /conversations/{conversationID}/typing/live. It
// sends a snapshot as soon as the socket is open and another one every time
// the conversation changes or an indicator lapses, until either side closes.
type liveTyping struct {
	typingAPI api.TypingServerInternalAPI
	notifier  *notifier.Notifier
	clock     clockwork.Clock
}

func (l *liveTyping) serve(w http.ResponseWriter, req *http.Request, actorID string) {
	logger := util.GetLogger(req.Context())
	vars, err := httputil.URLDecodeMapValues(mux.Vars(req))
	if err != nil {
		writeJSONResponse(w, req, util.ErrorResponse(err))
		return
	}
	conversationID := vars["conversationID"]

	// Check membership before upgrading so that failures are plain HTTP.
	listener := l.notifier.GetListener(req.Context(), conversationID)
	defer listener.Close()
	position := listener.GetPosition()
	snapshot, err := listLive(req, l.typingAPI, actorID, conversationID)
	if err != nil {
		writeJSONResponse(w, req, errorResponse(req, err, "typingAPI.ListLive failed"))
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		// the upgrader has already replied
		logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close() // nolint: errcheck

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	go func() {
		// We never expect anything from the client, but reading is how
		// close frames and dropped connections are noticed.
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := l.clock.NewTicker(livePingInterval)
	defer ping.Stop()

	for {
		snapshot.Position = position
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err = conn.WriteJSON(snapshot); err != nil {
			logger.WithError(err).Debug("Failed to write typing snapshot")
			return
		}

		if !l.waitForChange(ctx, conn, listener, ping, position, snapshot.NextExpiry) {
			return
		}

		position = listener.GetPosition()
		snapshot, err = listLive(req.WithContext(ctx), l.typingAPI, actorID, conversationID)
		if err != nil {
			closeCode := websocket.CloseInternalServerErr
			var notAMember *api.NotAMemberError
			if errors.As(err, &notAMember) {
				closeCode = websocket.ClosePolicyViolation
			}
			logger.WithError(err).Debug("Closing live typing socket")
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(closeCode, err.Error()),
				time.Now().Add(liveWriteTimeout),
			)
			return
		}
	}
}

// waitForChange returns true once the conversation has moved past position
// or the next indicator has lapsed, and false if the socket should close.
func (l *liveTyping) waitForChange(
	ctx context.Context, conn *websocket.Conn, listener *notifier.ConversationStreamListener,
	ping clockwork.Ticker, position int64, nextExpiry spec.Timestamp,
) bool {
	var expiry <-chan time.Time
	if nextExpiry != 0 {
		timer := l.clock.NewTimer(nextExpiry.Time().Sub(l.clock.Now()))
		defer timer.Stop()
		expiry = timer.Chan()
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(liveWriteTimeout),
			)
			return false
		case <-ping.Chan():
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				return false
			}
		case <-listener.GetNotifyChannel(position):
			return true
		case <-expiry:
			return true
		}
	}
}

func writeJSONResponse(w http.ResponseWriter, req *http.Request, res util.JSONResponse) {
	util.MakeJSONAPI(util.NewJSONRequestHandler(func(*http.Request) util.JSONResponse {
		return res
	})).ServeHTTP(w, req)
}
