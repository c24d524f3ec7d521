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

package shared

import (
	"context"
	"database/sql"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/pkg/errors"

	"github.com/hearthchat/hearth/internal/sqlutil"
	"github.com/hearthchat/hearth/typingserver/api"
	"github.com/hearthchat/hearth/typingserver/storage/tables"
)

// Database implements storage.Database on top of an SQL table. Writes go
// through the Writer; reads use the pool directly.
type Database struct {
	DB               *sql.DB
	Writer           sqlutil.Writer
	TypingIndicators tables.TypingIndicators
}

func (d *Database) UpsertTypingIndicator(
	ctx context.Context, actorID, conversationID string, expiresAt spec.Timestamp,
) (applied bool, err error) {
	err = d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		applied, err = d.TypingIndicators.UpsertTypingIndicator(ctx, txn, actorID, conversationID, expiresAt)
		return err
	})
	return applied, errors.Wrap(err, "UpsertTypingIndicator")
}

func (d *Database) RemoveTypingIndicator(
	ctx context.Context, actorID, conversationID string,
) (removed bool, err error) {
	err = d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		removed, err = d.TypingIndicators.DeleteTypingIndicator(ctx, txn, actorID, conversationID)
		return err
	})
	return removed, errors.Wrap(err, "RemoveTypingIndicator")
}

func (d *Database) SelectTypingIndicator(
	ctx context.Context, actorID, conversationID string,
) (*api.TypingIndicator, error) {
	ind, err := d.TypingIndicators.SelectTypingIndicator(ctx, nil, actorID, conversationID)
	return ind, errors.Wrap(err, "SelectTypingIndicator")
}

func (d *Database) SelectLiveTypingIndicators(
	ctx context.Context, conversationID, excludingActorID string, now spec.Timestamp,
) ([]api.TypingIndicator, error) {
	inds, err := d.TypingIndicators.SelectLiveTypingIndicators(ctx, nil, conversationID, excludingActorID, now)
	return inds, errors.Wrap(err, "SelectLiveTypingIndicators")
}

func (d *Database) PurgeExpiredTypingIndicators(
	ctx context.Context, now spec.Timestamp,
) (purged int64, err error) {
	err = d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		purged, err = d.TypingIndicators.PurgeExpiredTypingIndicators(ctx, txn, now)
		return err
	})
	return purged, errors.Wrap(err, "PurgeExpiredTypingIndicators")
}
