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
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/typingserver/api"
	"github.com/hearthchat/hearth/typingserver/notifier"
)

// StartTyping handles PUT /conversations/{conversationID}/typing
func StartTyping(
	req *http.Request, typingAPI api.TypingServerInternalAPI,
	actorID, conversationID string,
) util.JSONResponse {
	var res api.UpsertResponse
	if err := typingAPI.Upsert(req.Context(), &api.UpsertRequest{
		ActorID:        actorID,
		ConversationID: conversationID,
	}, &res); err != nil {
		return errorResponse(req, err, "typingAPI.Upsert failed")
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: res,
	}
}

// StopTyping handles DELETE /conversations/{conversationID}/typing
func StopTyping(
	req *http.Request, typingAPI api.TypingServerInternalAPI,
	actorID, conversationID string,
) util.JSONResponse {
	var res api.RemoveResponse
	if err := typingAPI.Remove(req.Context(), &api.RemoveRequest{
		ActorID:        actorID,
		ConversationID: conversationID,
	}, &res); err != nil {
		return errorResponse(req, err, "typingAPI.Remove failed")
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: res,
	}
}

// GetTyping handles GET /conversations/{conversationID}/typing?since=&timeout=
//
// Without since it answers at once. With since, and if the conversation has
// not moved past it, the request is held for up to timeout milliseconds or
// until the earliest current indicator lapses, whichever is sooner.
func GetTyping(
	req *http.Request, typingAPI api.TypingServerInternalAPI,
	n *notifier.Notifier, clock clockwork.Clock, cfg *config.TypingServer,
	actorID, conversationID string,
) util.JSONResponse {
	since, timeout, jsonErr := parseLongPoll(req, cfg.MaxLongPollTimeout)
	if jsonErr != nil {
		return *jsonErr
	}

	position := n.CurrentPosition(conversationID)
	snapshot, err := listLive(req, typingAPI, actorID, conversationID)
	if err != nil {
		return errorResponse(req, err, "typingAPI.ListLive failed")
	}

	if since >= 0 && since >= position && timeout > 0 {
		if snapshot.NextExpiry != 0 {
			if untilExpiry := snapshot.NextExpiry.Time().Sub(clock.Now()); untilExpiry < timeout {
				timeout = untilExpiry
			}
		}
		position = n.WaitForChange(req.Context(), conversationID, since, timeout)
		if snapshot, err = listLive(req, typingAPI, actorID, conversationID); err != nil {
			return errorResponse(req, err, "typingAPI.ListLive failed")
		}
	}

	snapshot.Position = position
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: snapshot,
	}
}

func listLive(req *http.Request, typingAPI api.TypingServerInternalAPI, actorID, conversationID string) (api.TypingSnapshot, error) {
	var res api.ListLiveResponse
	if err := typingAPI.ListLive(req.Context(), &api.ListLiveRequest{
		ConversationID: conversationID,
		ViewerID:       actorID,
	}, &res); err != nil {
		return api.TypingSnapshot{}, err
	}
	return api.TypingSnapshot{
		Typers:     res.Typers,
		NextExpiry: res.NextExpiry,
	}, nil
}

// parseLongPoll returns since, or -1 if not given, and the timeout clamped
// to maxTimeout.
func parseLongPoll(req *http.Request, maxTimeout time.Duration) (int64, time.Duration, *util.JSONResponse) {
	query := req.URL.Query()
	since := int64(-1)
	if s := query.Get("since"); s != "" {
		var err error
		since, err = strconv.ParseInt(s, 10, 64)
		if err != nil || since < 0 {
			return 0, 0, &util.JSONResponse{
				Code: http.StatusBadRequest,
				JSON: spec.InvalidParam("since must be a non-negative integer"),
			}
		}
	}
	var timeout time.Duration
	if t := query.Get("timeout"); t != "" {
		ms, err := strconv.ParseInt(t, 10, 64)
		if err != nil || ms < 0 {
			return 0, 0, &util.JSONResponse{
				Code: http.StatusBadRequest,
				JSON: spec.InvalidParam("timeout must be a non-negative number of milliseconds"),
			}
		}
		timeout = time.Duration(ms) * time.Millisecond
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}
	return since, timeout, nil
}

// errorResponse maps typing server errors to client responses.
func errorResponse(req *http.Request, err error, msg string) util.JSONResponse {
	var (
		notAMember *api.NotAMemberError
		integrity  *api.ReferentialIntegrityError
		transient  *api.TransientStoreError
	)
	switch {
	case errors.As(err, &notAMember):
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("You are not a member of this conversation"),
		}
	case errors.As(err, &integrity):
		util.GetLogger(req.Context()).WithError(err).Error(msg)
		return util.JSONResponse{
			Code: http.StatusInternalServerError,
			JSON: spec.Unknown(err.Error()),
		}
	case errors.As(err, &transient):
		util.GetLogger(req.Context()).WithError(err).Warn(msg)
		return util.JSONResponse{
			Code: http.StatusServiceUnavailable,
			JSON: spec.Unknown("Typing is temporarily unavailable"),
		}
	}
	util.GetLogger(req.Context()).WithError(err).Error(msg)
	return util.JSONResponse{
		Code: http.StatusInternalServerError,
		JSON: spec.InternalServerError{},
	}
}
