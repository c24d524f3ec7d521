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

package caching

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// MembershipCache remembers that an actor was a member of a conversation for
// a short while. Only positive answers are stored, so a user who joins is
// seen at once and a user who leaves keeps access for at most the lifetime.
type MembershipCache struct {
	members *cache.Cache
}

func NewMembershipCache(lifetime time.Duration) *MembershipCache {
	return &MembershipCache{
		members: cache.New(lifetime, lifetime*2),
	}
}

func membershipKey(actorID, conversationID string) string {
	return actorID + "\000" + conversationID
}

func (c *MembershipCache) IsMember(actorID, conversationID string) bool {
	_, ok := c.members.Get(membershipKey(actorID, conversationID))
	return ok
}

func (c *MembershipCache) StoreMember(actorID, conversationID string) {
	c.members.SetDefault(membershipKey(actorID, conversationID), struct{}{})
}

// ForgetMember drops a cached membership, e.g. when the actor leaves.
func (c *MembershipCache) ForgetMember(actorID, conversationID string) {
	c.members.Delete(membershipKey(actorID, conversationID))
}
