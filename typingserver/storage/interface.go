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

package storage

import (
	"context"

	"github.com/matrix-org/gomatrixserverlib/spec"

	"github.com/hearthchat/hearth/typingserver/api"
)

// Database is the presence store. Implementations never enforce membership
// and never filter by anything other than the arguments they are given.
type Database interface {
	// UpsertTypingIndicator stores the indicator for (actorID,
	// conversationID) unless one with a later expiry is already stored.
	// applied reports whether this write won.
	UpsertTypingIndicator(ctx context.Context, actorID, conversationID string, expiresAt spec.Timestamp) (applied bool, err error)
	// RemoveTypingIndicator deletes the indicator if there is one. Removing
	// an indicator that does not exist is not an error.
	RemoveTypingIndicator(ctx context.Context, actorID, conversationID string) (removed bool, err error)
	// SelectTypingIndicator returns the stored indicator, live or not, or
	// nil if there is none.
	SelectTypingIndicator(ctx context.Context, actorID, conversationID string) (*api.TypingIndicator, error)
	// SelectLiveTypingIndicators returns the indicators in the conversation
	// that expire after now, leaving out excludingActorID.
	SelectLiveTypingIndicators(ctx context.Context, conversationID, excludingActorID string, now spec.Timestamp) ([]api.TypingIndicator, error)
	// PurgeExpiredTypingIndicators physically deletes every indicator that
	// expired at or before now and returns how many were deleted.
	PurgeExpiredTypingIndicators(ctx context.Context, now spec.Timestamp) (int64, error)
}
