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
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthchat/hearth/internal/sqlutil"
	"github.com/hearthchat/hearth/typingserver/api"
)

var errConnectionReset = fmt.Errorf("connection reset by peer")

type failingTable struct {
	sawTxn bool
}

func (f *failingTable) UpsertTypingIndicator(ctx context.Context, txn *sql.Tx, actorID, conversationID string, expiresAt spec.Timestamp) (bool, error) {
	f.sawTxn = txn != nil
	return false, errConnectionReset
}

func (f *failingTable) DeleteTypingIndicator(ctx context.Context, txn *sql.Tx, actorID, conversationID string) (bool, error) {
	f.sawTxn = txn != nil
	return true, nil
}

func (f *failingTable) SelectTypingIndicator(ctx context.Context, txn *sql.Tx, actorID, conversationID string) (*api.TypingIndicator, error) {
	return nil, errConnectionReset
}

func (f *failingTable) SelectLiveTypingIndicators(ctx context.Context, txn *sql.Tx, conversationID, excludingActorID string, now spec.Timestamp) ([]api.TypingIndicator, error) {
	return nil, errConnectionReset
}

func (f *failingTable) PurgeExpiredTypingIndicators(ctx context.Context, txn *sql.Tx, now spec.Timestamp) (int64, error) {
	return 0, errConnectionReset
}

func TestWriteFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() // nolint: errcheck

	table := &failingTable{}
	d := &Database{DB: db, Writer: sqlutil.NewDummyWriter(), TypingIndicators: table}

	mock.ExpectBegin()
	mock.ExpectRollback()
	applied, err := d.UpsertTypingIndicator(context.Background(), "alice", "general", 5000)
	assert.False(t, applied)
	assert.Equal(t, errConnectionReset, errors.Cause(err))
	assert.Contains(t, err.Error(), "UpsertTypingIndicator")
	assert.True(t, table.sawTxn)

	mock.ExpectBegin()
	mock.ExpectCommit()
	removed, err := d.RemoveTypingIndicator(context.Background(), "alice", "general")
	assert.NoError(t, err)
	assert.True(t, removed)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = d.PurgeExpiredTypingIndicators(context.Background(), 5000)
	assert.Equal(t, errConnectionReset, errors.Cause(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadFailureIsWrapped(t *testing.T) {
	d := &Database{Writer: sqlutil.NewDummyWriter(), TypingIndicators: &failingTable{}}

	_, err := d.SelectTypingIndicator(context.Background(), "alice", "general")
	assert.Equal(t, errConnectionReset, errors.Cause(err))

	_, err = d.SelectLiveTypingIndicators(context.Background(), "general", "bob", 0)
	assert.Equal(t, errConnectionReset, errors.Cause(err))
	assert.Contains(t, err.Error(), "SelectLiveTypingIndicators")
}
