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

// Package inmemory is a presence store held in process memory. Everything is
// lost on restart, which for typing indicators costs at most one TTL of
// missing indicators.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/matrix-org/gomatrixserverlib/spec"

	"github.com/hearthchat/hearth/typingserver/api"
)

type pairKey struct {
	actorID        string
	conversationID string
}

// Database keeps two indexes over the same records: one keyed by
// (actor, conversation) and one from conversation to its actors. Both are
// updated under the same lock on every write.
type Database struct {
	sync.RWMutex
	byPair         map[pairKey]spec.Timestamp
	byConversation map[string]map[string]struct{}
}

func NewDatabase() *Database {
	return &Database{
		byPair:         make(map[pairKey]spec.Timestamp),
		byConversation: make(map[string]map[string]struct{}),
	}
}

func (d *Database) UpsertTypingIndicator(
	ctx context.Context, actorID, conversationID string, expiresAt spec.Timestamp,
) (bool, error) {
	d.Lock()
	defer d.Unlock()
	key := pairKey{actorID, conversationID}
	if existing, ok := d.byPair[key]; ok && existing > expiresAt {
		return false, nil
	}
	d.byPair[key] = expiresAt
	actors, ok := d.byConversation[conversationID]
	if !ok {
		actors = make(map[string]struct{})
		d.byConversation[conversationID] = actors
	}
	actors[actorID] = struct{}{}
	return true, nil
}

func (d *Database) RemoveTypingIndicator(
	ctx context.Context, actorID, conversationID string,
) (bool, error) {
	d.Lock()
	defer d.Unlock()
	return d.remove(pairKey{actorID, conversationID}), nil
}

// remove must be called with the write lock held.
func (d *Database) remove(key pairKey) bool {
	if _, ok := d.byPair[key]; !ok {
		return false
	}
	delete(d.byPair, key)
	if actors, ok := d.byConversation[key.conversationID]; ok {
		delete(actors, key.actorID)
		if len(actors) == 0 {
			delete(d.byConversation, key.conversationID)
		}
	}
	return true
}

func (d *Database) SelectTypingIndicator(
	ctx context.Context, actorID, conversationID string,
) (*api.TypingIndicator, error) {
	d.RLock()
	defer d.RUnlock()
	expiresAt, ok := d.byPair[pairKey{actorID, conversationID}]
	if !ok {
		return nil, nil
	}
	return &api.TypingIndicator{
		ActorID:        actorID,
		ConversationID: conversationID,
		ExpiresAt:      expiresAt,
	}, nil
}

func (d *Database) SelectLiveTypingIndicators(
	ctx context.Context, conversationID, excludingActorID string, now spec.Timestamp,
) ([]api.TypingIndicator, error) {
	d.RLock()
	defer d.RUnlock()
	var result []api.TypingIndicator
	for actorID := range d.byConversation[conversationID] {
		if actorID == excludingActorID {
			continue
		}
		expiresAt := d.byPair[pairKey{actorID, conversationID}]
		if expiresAt <= now {
			continue
		}
		result = append(result, api.TypingIndicator{
			ActorID:        actorID,
			ConversationID: conversationID,
			ExpiresAt:      expiresAt,
		})
	}
	// match the SQL stores, which return the soonest to expire first
	sort.Slice(result, func(i, j int) bool {
		if result[i].ExpiresAt != result[j].ExpiresAt {
			return result[i].ExpiresAt < result[j].ExpiresAt
		}
		return result[i].ActorID < result[j].ActorID
	})
	return result, nil
}

func (d *Database) PurgeExpiredTypingIndicators(
	ctx context.Context, now spec.Timestamp,
) (int64, error) {
	d.Lock()
	defer d.Unlock()
	var purged int64
	for key, expiresAt := range d.byPair {
		if expiresAt <= now && d.remove(key) {
			purged++
		}
	}
	return purged, nil
}
