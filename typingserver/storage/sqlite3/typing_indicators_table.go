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

package sqlite3

import (
	"context"
	"database/sql"

	"github.com/matrix-org/gomatrixserverlib/spec"

	"github.com/hearthchat/hearth/internal"
	"github.com/hearthchat/hearth/internal/sqlutil"
	"github.com/hearthchat/hearth/typingserver/api"
	"github.com/hearthchat/hearth/typingserver/storage/sqlite3/deltas"
	"github.com/hearthchat/hearth/typingserver/storage/tables"
)

const typingIndicatorsSchema = `
CREATE TABLE IF NOT EXISTS typingserver_typing_indicators (
	actor_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	UNIQUE (actor_id, conversation_id)
);
`

const upsertTypingIndicatorSQL = "" +
	"INSERT INTO typingserver_typing_indicators (actor_id, conversation_id, expires_at)" +
	" VALUES ($1, $2, $3)" +
	" ON CONFLICT (actor_id, conversation_id)" +
	" DO UPDATE SET expires_at = excluded.expires_at" +
	" WHERE typingserver_typing_indicators.expires_at <= excluded.expires_at"

const deleteTypingIndicatorSQL = "" +
	"DELETE FROM typingserver_typing_indicators WHERE actor_id = $1 AND conversation_id = $2"

const selectTypingIndicatorSQL = "" +
	"SELECT expires_at FROM typingserver_typing_indicators WHERE actor_id = $1 AND conversation_id = $2"

const selectLiveTypingIndicatorsSQL = "" +
	"SELECT actor_id, expires_at FROM typingserver_typing_indicators" +
	" WHERE conversation_id = $1 AND expires_at > $2 AND actor_id != $3" +
	" ORDER BY expires_at ASC"

const purgeExpiredTypingIndicatorsSQL = "" +
	"DELETE FROM typingserver_typing_indicators WHERE expires_at <= $1"

type typingIndicatorsStatements struct {
	upsertTypingIndicatorStmt        *sql.Stmt
	deleteTypingIndicatorStmt        *sql.Stmt
	selectTypingIndicatorStmt        *sql.Stmt
	selectLiveTypingIndicatorsStmt   *sql.Stmt
	purgeExpiredTypingIndicatorsStmt *sql.Stmt
}

func NewSqliteTypingIndicatorsTable(db *sql.DB) (tables.TypingIndicators, error) {
	s := &typingIndicatorsStatements{}
	_, err := db.Exec(typingIndicatorsSchema)
	if err != nil {
		return nil, err
	}
	m := sqlutil.NewMigrator(db)
	m.AddMigrations(sqlutil.Migration{
		Version: "typingserver: index typing indicators by conversation and expiry",
		Up:      deltas.UpConversationExpiryIndex,
	})
	if err = m.Up(context.Background()); err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.upsertTypingIndicatorStmt, upsertTypingIndicatorSQL},
		{&s.deleteTypingIndicatorStmt, deleteTypingIndicatorSQL},
		{&s.selectTypingIndicatorStmt, selectTypingIndicatorSQL},
		{&s.selectLiveTypingIndicatorsStmt, selectLiveTypingIndicatorsSQL},
		{&s.purgeExpiredTypingIndicatorsStmt, purgeExpiredTypingIndicatorsSQL},
	}.Prepare(db)
}

func (s *typingIndicatorsStatements) UpsertTypingIndicator(
	ctx context.Context, txn *sql.Tx, actorID, conversationID string, expiresAt spec.Timestamp,
) (bool, error) {
	res, err := sqlutil.TxStmt(txn, s.upsertTypingIndicatorStmt).ExecContext(ctx, actorID, conversationID, int64(expiresAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *typingIndicatorsStatements) DeleteTypingIndicator(
	ctx context.Context, txn *sql.Tx, actorID, conversationID string,
) (bool, error) {
	res, err := sqlutil.TxStmt(txn, s.deleteTypingIndicatorStmt).ExecContext(ctx, actorID, conversationID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *typingIndicatorsStatements) SelectTypingIndicator(
	ctx context.Context, txn *sql.Tx, actorID, conversationID string,
) (*api.TypingIndicator, error) {
	var expiresAt int64
	err := sqlutil.TxStmt(txn, s.selectTypingIndicatorStmt).QueryRowContext(ctx, actorID, conversationID).Scan(&expiresAt)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &api.TypingIndicator{
		ActorID:        actorID,
		ConversationID: conversationID,
		ExpiresAt:      spec.Timestamp(expiresAt),
	}, nil
}

func (s *typingIndicatorsStatements) SelectLiveTypingIndicators(
	ctx context.Context, txn *sql.Tx, conversationID, excludingActorID string, now spec.Timestamp,
) ([]api.TypingIndicator, error) {
	rows, err := sqlutil.TxStmt(txn, s.selectLiveTypingIndicatorsStmt).QueryContext(ctx, conversationID, int64(now), excludingActorID)
	if err != nil {
		return nil, err
	}
	defer internal.CloseAndLogIfError(ctx, rows, "SelectLiveTypingIndicators: rows.close() failed")
	var result []api.TypingIndicator
	for rows.Next() {
		ind := api.TypingIndicator{ConversationID: conversationID}
		var expiresAt int64
		if err = rows.Scan(&ind.ActorID, &expiresAt); err != nil {
			return nil, err
		}
		ind.ExpiresAt = spec.Timestamp(expiresAt)
		result = append(result, ind)
	}
	return result, rows.Err()
}

func (s *typingIndicatorsStatements) PurgeExpiredTypingIndicators(
	ctx context.Context, txn *sql.Tx, now spec.Timestamp,
) (int64, error) {
	res, err := sqlutil.TxStmt(txn, s.purgeExpiredTypingIndicatorsStmt).ExecContext(ctx, int64(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
