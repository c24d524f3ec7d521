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

package test

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

var userIDCounter = int64(0)

type User struct {
	ID          string
	DisplayName string
	AccessToken string
}

type UserOpt func(*User)

func WithDisplayName(name string) UserOpt {
	return func(u *User) {
		u.DisplayName = name
	}
}

func NewUser(t *testing.T, opts ...UserOpt) *User {
	counter := atomic.AddInt64(&userIDCounter, 1)
	u := User{
		ID:          fmt.Sprintf("user_%d", counter),
		AccessToken: uuid.NewString(),
	}
	u.DisplayName = u.ID
	for _, opt := range opts {
		opt(&u)
	}
	t.Logf("NewUser: created user %s", u.ID)
	return &u
}

type Conversation struct {
	ID      string
	Members []*User
}

// NewConversation creates a conversation with a random ID whose members are
// the given users.
func NewConversation(t *testing.T, members ...*User) *Conversation {
	c := &Conversation{
		ID:      "conv_" + uuid.NewString(),
		Members: members,
	}
	t.Logf("NewConversation: created conversation %s with %d members", c.ID, len(members))
	return c
}

// MemberIDs returns the user IDs of every member.
func (c *Conversation) MemberIDs() []string {
	ids := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		ids = append(ids, m.ID)
	}
	return ids
}
