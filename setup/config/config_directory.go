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

package config

import "fmt"

// Directory is a static list of users and conversations. It backs the
// identity, membership and actor lookups of standalone deployments that
// are not attached to the main chat backend.
type Directory struct {
	Users         []DirectoryUser         `yaml:"users"`
	Conversations []DirectoryConversation `yaml:"conversations"`
}

type DirectoryUser struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	AccessToken string `yaml:"access_token"`
}

type DirectoryConversation struct {
	ID string `yaml:"id"`
	// Members may name users that are not listed under users. Those members
	// can type, but cannot be resolved when listing.
	Members []string `yaml:"members"`
}

func (c *Directory) Defaults(generate bool) {
	if !generate {
		return
	}
	c.Users = []DirectoryUser{
		{ID: "alice", DisplayName: "alice", AccessToken: "alice_secret"},
		{ID: "bob", DisplayName: "bob", AccessToken: "bob_secret"},
	}
	c.Conversations = []DirectoryConversation{
		{ID: "general", Members: []string{"alice", "bob"}},
	}
}

func (c *Directory) Verify(configErrs *ConfigErrors) {
	users := make(map[string]struct{}, len(c.Users))
	tokens := make(map[string]struct{}, len(c.Users))
	for i, u := range c.Users {
		checkNotEmpty(configErrs, fmt.Sprintf("directory.users[%d].id", i), u.ID)
		checkNotEmpty(configErrs, fmt.Sprintf("directory.users[%d].access_token", i), u.AccessToken)
		if _, ok := users[u.ID]; ok {
			configErrs.Add(fmt.Sprintf("duplicate user %q in directory.users", u.ID))
		}
		if _, ok := tokens[u.AccessToken]; ok && u.AccessToken != "" {
			configErrs.Add(fmt.Sprintf("duplicate access token for user %q in directory.users", u.ID))
		}
		users[u.ID] = struct{}{}
		tokens[u.AccessToken] = struct{}{}
	}
	conversations := make(map[string]struct{}, len(c.Conversations))
	for i, conv := range c.Conversations {
		checkNotEmpty(configErrs, fmt.Sprintf("directory.conversations[%d].id", i), conv.ID)
		checkNotZero(configErrs, fmt.Sprintf("directory.conversations[%d].members", i), int64(len(conv.Members)))
		if _, ok := conversations[conv.ID]; ok {
			configErrs.Add(fmt.Sprintf("duplicate conversation %q in directory.conversations", conv.ID))
		}
		conversations[conv.ID] = struct{}{}
	}
}
