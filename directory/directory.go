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

// Package directory answers identity, membership and actor lookups from the
// static users and conversations in the config file.
package directory

import (
	"context"
	"sync"

	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/typingserver/api"
)

// Directory implements api.QueryAccessTokenAPI, api.MembershipAPI and
// api.ActorLookupAPI.
type Directory struct {
	mu      sync.RWMutex
	tokens  map[string]string
	users   map[string]api.DisplayIdentity
	members map[string]map[string]struct{}
}

func NewDirectory(cfg *config.Directory) *Directory {
	d := &Directory{
		tokens:  make(map[string]string, len(cfg.Users)),
		users:   make(map[string]api.DisplayIdentity, len(cfg.Users)),
		members: make(map[string]map[string]struct{}, len(cfg.Conversations)),
	}
	for _, u := range cfg.Users {
		d.AddUser(u.ID, u.DisplayName, u.AccessToken)
	}
	for _, c := range cfg.Conversations {
		for _, m := range c.Members {
			d.Join(m, c.ID)
		}
	}
	return d
}

// AddUser adds or replaces a user. An empty display name falls back to the ID.
func (d *Directory) AddUser(userID, displayName, accessToken string) {
	if displayName == "" {
		displayName = userID
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = api.DisplayIdentity{UserID: userID, DisplayName: displayName}
	if accessToken != "" {
		d.tokens[accessToken] = userID
	}
}

// RemoveUser forgets a user and their tokens but leaves their memberships,
// which is how a deleted account looks to the typing server.
func (d *Directory) RemoveUser(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, userID)
	for token, id := range d.tokens {
		if id == userID {
			delete(d.tokens, token)
		}
	}
}

func (d *Directory) Join(userID, conversationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.members[conversationID]
	if !ok {
		members = make(map[string]struct{})
		d.members[conversationID] = members
	}
	members[userID] = struct{}{}
}

func (d *Directory) Leave(userID, conversationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.members[conversationID], userID)
}

func (d *Directory) QueryAccessToken(
	ctx context.Context, req *api.QueryAccessTokenRequest, res *api.QueryAccessTokenResponse,
) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	res.ActorID = d.tokens[req.AccessToken]
	return nil
}

func (d *Directory) QueryMembership(
	ctx context.Context, req *api.QueryMembershipRequest, res *api.QueryMembershipResponse,
) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, res.IsMember = d.members[req.ConversationID][req.ActorID]
	return nil
}

func (d *Directory) QueryDisplayIdentity(
	ctx context.Context, req *api.QueryDisplayIdentityRequest, res *api.QueryDisplayIdentityResponse,
) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	res.Identity, res.Found = d.users[req.ActorID]
	return nil
}
