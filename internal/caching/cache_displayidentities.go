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

import "github.com/hearthchat/hearth/typingserver/api"

// DisplayIdentityCache contains the subset of functions needed for
// a display identity cache.
type DisplayIdentityCache interface {
	GetDisplayIdentity(actorID string) (api.DisplayIdentity, bool)
	StoreDisplayIdentity(actorID string, identity api.DisplayIdentity)
	InvalidateDisplayIdentity(actorID string)
}

func (c Caches) GetDisplayIdentity(actorID string) (api.DisplayIdentity, bool) {
	return c.DisplayIdentities.Get(actorID)
}

func (c Caches) StoreDisplayIdentity(actorID string, identity api.DisplayIdentity) {
	c.DisplayIdentities.Set(actorID, identity)
}

func (c Caches) InvalidateDisplayIdentity(actorID string) {
	c.DisplayIdentities.Unset(actorID)
}
