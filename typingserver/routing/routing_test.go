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

package routing_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthchat/hearth/directory"
	"github.com/hearthchat/hearth/internal/httputil"
	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/test"
	"github.com/hearthchat/hearth/typingserver/api"
	"github.com/hearthchat/hearth/typingserver/internal"
	"github.com/hearthchat/hearth/typingserver/notifier"
	"github.com/hearthchat/hearth/typingserver/routing"
	"github.com/hearthchat/hearth/typingserver/storage/inmemory"
)

// notifyingProducer stands in for the JetStream round trip.
type notifyingProducer struct {
	n *notifier.Notifier
}

func (p notifyingProducer) SendTyping(ctx context.Context, ev api.TypingEvent) error {
	p.n.OnTypingEvent(ev)
	return nil
}

type testServer struct {
	*httptest.Server
	clock clockwork.Clock
	conv  *test.Conversation
}

func newTestServer(t *testing.T, clock clockwork.Clock, members []*test.User, others ...*test.User) *testServer {
	t.Helper()
	cfg := &config.TypingServer{}
	cfg.Defaults(false)

	conv := test.NewConversation(t, members...)
	dirCfg := &config.Directory{
		Conversations: []config.DirectoryConversation{{ID: conv.ID, Members: conv.MemberIDs()}},
	}
	for _, u := range append(members, others...) {
		dirCfg.Users = append(dirCfg.Users, config.DirectoryUser{
			ID: u.ID, DisplayName: u.DisplayName, AccessToken: u.AccessToken,
		})
	}
	dir := directory.NewDirectory(dirCfg)
	n := notifier.NewNotifier(clock)
	t.Cleanup(n.Stop)

	typingAPI := &internal.TypingServerInternalAPI{
		Cfg:            cfg,
		DB:             inmemory.NewDatabase(),
		Clock:          clock,
		MembershipAPI:  dir,
		ActorLookupAPI: dir,
		Producer:       notifyingProducer{n},
	}
	routers := httputil.NewRouters()
	routing.Setup(routers.Client, typingAPI, dir, n, clock, cfg, false)
	srv := httptest.NewServer(routers.Client)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, clock: clock, conv: conv}
}

func (s *testServer) typingURL() string {
	return fmt.Sprintf("%s/_hearth/client/v1/conversations/%s/typing", s.URL, s.conv.ID)
}

func (s *testServer) do(t *testing.T, method, url string, user *test.User) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+user.AccessToken)
	}
	res, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func decodeSnapshot(t *testing.T, res *http.Response) api.TypingSnapshot {
	t.Helper()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var snapshot api.TypingSnapshot
	require.NoError(t, json.NewDecoder(res.Body).Decode(&snapshot))
	return snapshot
}

func typerIDs(snapshot api.TypingSnapshot) []string {
	ids := []string{}
	for _, typer := range snapshot.Typers {
		ids = append(ids, typer.UserID)
	}
	return ids
}

func TestStartAndStopTyping(t *testing.T) {
	alice, bob := test.NewUser(t), test.NewUser(t)
	clock := clockwork.NewFakeClock()
	srv := newTestServer(t, clock, []*test.User{alice, bob})

	res := srv.do(t, http.MethodPut, srv.typingURL(), alice)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var upsert api.UpsertResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&upsert))
	assert.True(t, upsert.Applied)

	assert.Equal(t, []string{alice.ID}, typerIDs(decodeSnapshot(t, srv.do(t, http.MethodGet, srv.typingURL(), bob))))
	assert.Empty(t, typerIDs(decodeSnapshot(t, srv.do(t, http.MethodGet, srv.typingURL(), alice))))

	res = srv.do(t, http.MethodDelete, srv.typingURL(), alice)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, typerIDs(decodeSnapshot(t, srv.do(t, http.MethodGet, srv.typingURL(), bob))))

	// stopping twice is fine
	res = srv.do(t, http.MethodDelete, srv.typingURL(), alice)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestTypingRequiresAuthAndMembership(t *testing.T) {
	alice, mallory := test.NewUser(t), test.NewUser(t)
	srv := newTestServer(t, clockwork.NewFakeClock(), []*test.User{alice}, mallory)

	res := srv.do(t, http.MethodPut, srv.typingURL(), nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodGet} {
		res = srv.do(t, method, srv.typingURL(), mallory)
		assert.Equal(t, http.StatusForbidden, res.StatusCode, method)
	}
}

func TestInvalidLongPollParameters(t *testing.T) {
	alice := test.NewUser(t)
	srv := newTestServer(t, clockwork.NewFakeClock(), []*test.User{alice})

	for _, query := range []string{"?since=abc", "?since=-2", "?timeout=soon", "?timeout=-1"} {
		res := srv.do(t, http.MethodGet, srv.typingURL()+query, alice)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode, query)
	}
}

func TestLongPollWakesOnChange(t *testing.T) {
	alice, bob := test.NewUser(t), test.NewUser(t)
	clock := clockwork.NewFakeClock()
	srv := newTestServer(t, clock, []*test.User{alice, bob})

	initial := decodeSnapshot(t, srv.do(t, http.MethodGet, srv.typingURL(), bob))
	assert.Empty(t, initial.Typers)

	done := make(chan api.TypingSnapshot)
	go func() {
		url := fmt.Sprintf("%s?since=%d&timeout=20000", srv.typingURL(), initial.Position)
		req, _ := http.NewRequest(http.MethodGet, url, nil)
		req.Header.Set("Authorization", "Bearer "+bob.AccessToken)
		res, err := srv.Client().Do(req)
		if err != nil {
			close(done)
			return
		}
		defer res.Body.Close() // nolint: errcheck
		var snapshot api.TypingSnapshot
		_ = json.NewDecoder(res.Body).Decode(&snapshot)
		done <- snapshot
	}()

	// the long poll's timeout timer
	clock.BlockUntil(1)
	srv.do(t, http.MethodPut, srv.typingURL(), alice)

	select {
	case snapshot := <-done:
		assert.Equal(t, []string{alice.ID}, typerIDs(snapshot))
		assert.Greater(t, snapshot.Position, initial.Position)
	case <-time.After(5 * time.Second):
		t.Fatal("long poll did not return after a change")
	}
}

func TestLongPollTimesOut(t *testing.T) {
	alice, bob := test.NewUser(t), test.NewUser(t)
	clock := clockwork.NewFakeClock()
	srv := newTestServer(t, clock, []*test.User{alice, bob})

	initial := decodeSnapshot(t, srv.do(t, http.MethodGet, srv.typingURL(), bob))

	done := make(chan api.TypingSnapshot)
	go func() {
		url := fmt.Sprintf("%s?since=%d&timeout=1000", srv.typingURL(), initial.Position)
		req, _ := http.NewRequest(http.MethodGet, url, nil)
		req.Header.Set("Authorization", "Bearer "+bob.AccessToken)
		res, err := srv.Client().Do(req)
		if err != nil {
			close(done)
			return
		}
		defer res.Body.Close() // nolint: errcheck
		var snapshot api.TypingSnapshot
		_ = json.NewDecoder(res.Body).Decode(&snapshot)
		done <- snapshot
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Second)

	select {
	case snapshot := <-done:
		assert.Empty(t, snapshot.Typers)
		assert.Equal(t, initial.Position, snapshot.Position)
	case <-time.After(5 * time.Second):
		t.Fatal("long poll did not time out")
	}
}

func TestLiveTypingSocket(t *testing.T) {
	alice, bob := test.NewUser(t), test.NewUser(t)
	srv := newTestServer(t, clockwork.NewRealClock(), []*test.User{alice, bob})

	wsURL := "ws" + strings.TrimPrefix(srv.typingURL(), "http") + "/live?access_token=" + bob.AccessToken
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close() // nolint: errcheck
	_ = res.Body.Close()

	read := func() api.TypingSnapshot {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var snapshot api.TypingSnapshot
		require.NoError(t, conn.ReadJSON(&snapshot))
		return snapshot
	}

	first := read()
	assert.Empty(t, first.Typers)

	srv.do(t, http.MethodPut, srv.typingURL(), alice)
	second := read()
	assert.Equal(t, []string{alice.ID}, typerIDs(second))
	assert.Greater(t, second.Position, first.Position)

	srv.do(t, http.MethodDelete, srv.typingURL(), alice)
	assert.Empty(t, read().Typers)
}

func TestLiveTypingSocketRejectsNonMembers(t *testing.T) {
	alice, mallory := test.NewUser(t), test.NewUser(t)
	srv := newTestServer(t, clockwork.NewRealClock(), []*test.User{alice}, mallory)

	wsURL := "ws" + strings.TrimPrefix(srv.typingURL(), "http") + "/live?access_token=" + mallory.AccessToken
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}
