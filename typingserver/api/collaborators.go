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

package api

import "context"

// The typing server does not own users, sessions or conversations. The
// interfaces below are how it asks the components that do.

type QueryAccessTokenRequest struct {
	AccessToken string `json:"access_token"`
}

type QueryAccessTokenResponse struct {
	// ActorID is empty if the token is not known.
	ActorID string `json:"actor_id"`
}

// QueryAccessTokenAPI resolves the caller's identity from a session token.
type QueryAccessTokenAPI interface {
	QueryAccessToken(ctx context.Context, req *QueryAccessTokenRequest, res *QueryAccessTokenResponse) error
}

type QueryMembershipRequest struct {
	ActorID        string `json:"actor_id"`
	ConversationID string `json:"conversation_id"`
}

type QueryMembershipResponse struct {
	IsMember bool `json:"is_member"`
}

// MembershipAPI decides whether an actor may see and signal typing in a
// conversation.
type MembershipAPI interface {
	QueryMembership(ctx context.Context, req *QueryMembershipRequest, res *QueryMembershipResponse) error
}

type QueryDisplayIdentityRequest struct {
	ActorID string `json:"actor_id"`
}

type QueryDisplayIdentityResponse struct {
	Found    bool            `json:"found"`
	Identity DisplayIdentity `json:"identity"`
}

// ActorLookupAPI turns an actor ID into something a viewer can display.
type ActorLookupAPI interface {
	QueryDisplayIdentity(ctx context.Context, req *QueryDisplayIdentityRequest, res *QueryDisplayIdentityResponse) error
}
