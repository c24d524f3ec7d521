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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/pkg/errors"

	"github.com/hearthchat/hearth/internal/httputil"
	"github.com/hearthchat/hearth/typingserver/api"
)

// HTTPError is returned when the server answers with anything but 200 OK.
type HTTPError struct {
	Code    int
	ErrCode spec.MatrixErrorCode
	Message string
}

func (e *HTTPError) Error() string {
	if e.ErrCode == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s: %s", e.Code, e.ErrCode, e.Message)
}

// Is makes a 403 match api.ErrNotAMember, which is the only reason the
// typing API forbids a request.
func (e *HTTPError) Is(target error) bool {
	return e.Code == http.StatusForbidden && target == api.ErrNotAMember
}

// Client talks to the typing endpoints of the client API as one user. It
// implements Transport.
type Client struct {
	baseURL     *url.URL
	accessToken string
	httpClient  *http.Client
	dialer      *websocket.Dialer
}

// NewClient returns a client for the server at baseURL, e.g.
// "http://localhost:8008". A nil httpClient uses http.DefaultClient.
func NewClient(baseURL, accessToken string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid server URL")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:     u,
		accessToken: accessToken,
		httpClient:  httpClient,
		dialer:      websocket.DefaultDialer,
	}, nil
}

func (c *Client) typingURL(conversationID string) *url.URL {
	u := *c.baseURL
	u.RawPath = strings.TrimRight(u.EscapedPath(), "/") + httputil.PublicClientPathPrefix +
		"v1/conversations/" + url.PathEscape(conversationID) + "/typing"
	u.Path, _ = url.PathUnescape(u.RawPath)
	return &u
}

// Upsert implements Transport
func (c *Client) Upsert(ctx context.Context, conversationID string) error {
	var res api.UpsertResponse
	return c.do(ctx, http.MethodPut, c.typingURL(conversationID), &res)
}

// Remove implements Transport
func (c *Client) Remove(ctx context.Context, conversationID string) error {
	var res api.RemoveResponse
	return c.do(ctx, http.MethodDelete, c.typingURL(conversationID), &res)
}

// ListLive returns who is typing. If since is not negative and the
// conversation has not changed since that position, the server holds the
// request for up to timeout first.
func (c *Client) ListLive(ctx context.Context, conversationID string, since int64, timeout time.Duration) (*api.TypingSnapshot, error) {
	u := c.typingURL(conversationID)
	if since >= 0 {
		q := u.Query()
		q.Set("since", strconv.FormatInt(since, 10))
		q.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
		u.RawQuery = q.Encode()
	}
	var snapshot api.TypingSnapshot
	if err := c.do(ctx, http.MethodGet, u, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// DialLive opens the live typing socket for the conversation.
func (c *Client) DialLive(ctx context.Context, conversationID string) (*websocket.Conn, error) {
	u := c.typingURL(conversationID)
	u.Path += "/live"
	u.RawPath += "/live"
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.accessToken)
	conn, res, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if res != nil {
			defer res.Body.Close() // nolint: errcheck
			if res.StatusCode != http.StatusSwitchingProtocols {
				return nil, errors.Wrapf(decodeError(res), "GET %s", u.Path)
			}
		}
		return nil, errors.Wrapf(err, "GET %s", u.Path)
	}
	return conn, nil
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "http.NewRequestWithContext")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, u.Path)
	}
	defer res.Body.Close() // nolint: errcheck
	if res.StatusCode != http.StatusOK {
		return errors.Wrapf(decodeError(res), "%s %s", method, u.Path)
	}
	if err = json.NewDecoder(res.Body).Decode(response); err != nil {
		return errors.Wrap(err, "json.Decode")
	}
	return nil
}

func decodeError(res *http.Response) error {
	httpErr := &HTTPError{Code: res.StatusCode}
	body, err := io.ReadAll(io.LimitReader(res.Body, 64*1024))
	if err != nil || len(body) == 0 {
		return httpErr
	}
	var matrixErr spec.MatrixError
	if json.Unmarshal(body, &matrixErr) == nil {
		httpErr.ErrCode = matrixErr.ErrCode
		httpErr.Message = matrixErr.Err
	}
	return httpErr
}
