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

package tables

import (
	"context"
	"database/sql"

	"github.com/matrix-org/gomatrixserverlib/spec"

	"github.com/hearthchat/hearth/typingserver/api"
)

type TypingIndicators interface {
	UpsertTypingIndicator(ctx context.Context, txn *sql.Tx, actorID, conversationID string, expiresAt spec.Timestamp) (applied bool, err error)
	DeleteTypingIndicator(ctx context.Context, txn *sql.Tx, actorID, conversationID string) (deleted bool, err error)
	SelectTypingIndicator(ctx context.Context, txn *sql.Tx, actorID, conversationID string) (*api.TypingIndicator, error)
	SelectLiveTypingIndicators(ctx context.Context, txn *sql.Tx, conversationID, excludingActorID string, now spec.Timestamp) ([]api.TypingIndicator, error)
	PurgeExpiredTypingIndicators(ctx context.Context, txn *sql.Tx, now spec.Timestamp) (int64, error)
}
