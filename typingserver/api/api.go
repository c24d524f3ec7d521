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

// Package api provides the types that are used to communicate with the typing server.
package api

import (
	"context"

	"github.com/matrix-org/gomatrixserverlib/spec"
)

// TypingIndicator records that an actor is typing in a conversation until
// ExpiresAt. An indicator whose ExpiresAt is not after the current time is
// treated as absent, whether or not it has been deleted yet.
type TypingIndicator struct {
	ActorID        string         `json:"actor_id"`
	ConversationID string         `json:"conversation_id"`
	ExpiresAt      spec.Timestamp `json:"expires_at"`
}

// Live reports whether the indicator has not yet lapsed at now.
func (t *TypingIndicator) Live(now spec.Timestamp) bool {
	return t.ExpiresAt > now
}

// DisplayIdentity is what viewers see for a typing actor.
type DisplayIdentity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// CacheCost is the approximate size of the identity in bytes.
func (d DisplayIdentity) CacheCost() int64 {
	return int64(len(d.UserID) + len(d.DisplayName) + 32)
}

// UpsertRequest marks ActorID as typing in ConversationID. The expiry is
// always computed by the typing server as now plus the configured TTL.
type UpsertRequest struct {
	ActorID        string `json:"actor_id"`
	ConversationID string `json:"conversation_id"`
}

type UpsertResponse struct {
	ExpiresAt spec.Timestamp `json:"expires_at"`
	// Applied is false when a concurrent write with a later expiry won.
	Applied bool `json:"applied"`
}

// RemoveRequest clears ActorID's indicator in ConversationID.
type RemoveRequest struct {
	ActorID        string `json:"actor_id"`
	ConversationID string `json:"conversation_id"`
}

type RemoveResponse struct {
	// Removed is false if there was nothing to remove.
	Removed bool `json:"removed"`
}

// ListLiveRequest asks who is typing in ConversationID, as seen by ViewerID.
// The viewer is never included in the result.
type ListLiveRequest struct {
	ConversationID string `json:"conversation_id"`
	ViewerID       string `json:"viewer_id"`
}

type ListLiveResponse struct {
	Typers []DisplayIdentity `json:"typers"`
	// NextExpiry is the earliest expiry among the returned typers, or zero
	// when nobody is typing. The listing will change no later than this.
	NextExpiry spec.Timestamp `json:"next_expiry,omitempty"`
}

// TypingServerInternalAPI is the interface to the typing server, used by
// the client API routes and by other components in polylith deployments.
// Every call checks that the acting user is a member of the conversation
// first and fails with ErrNotAMember if not.
type TypingServerInternalAPI interface {
	Upsert(ctx context.Context, req *UpsertRequest, res *UpsertResponse) error
	Remove(ctx context.Context, req *RemoveRequest, res *RemoveResponse) error
	ListLive(ctx context.Context, req *ListLiveRequest, res *ListLiveResponse) error
}

// TypingSnapshot is what the client API returns to viewers: the live typers
// and the conversation's notifier position, which a long-polling viewer
// passes back as since.
type TypingSnapshot struct {
	Typers     []DisplayIdentity `json:"typers"`
	NextExpiry spec.Timestamp    `json:"next_expiry,omitempty"`
	Position   int64             `json:"position"`
}
