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

package deltas

import (
	"context"
	"database/sql"
	"fmt"
)

// UpConversationExpiryIndex replaces the plain conversation index with one
// that also covers expires_at, so live listings and purges are index scans.
func UpConversationExpiryIndex(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		DROP INDEX IF EXISTS typingserver_typing_indicators_conversation_id_idx;
		CREATE INDEX IF NOT EXISTS typingserver_typing_indicators_conversation_expiry_idx
			ON typingserver_typing_indicators(conversation_id, expires_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to execute upgrade: %w", err)
	}
	return nil
}

func DownConversationExpiryIndex(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		DROP INDEX IF EXISTS typingserver_typing_indicators_conversation_expiry_idx;
		CREATE INDEX IF NOT EXISTS typingserver_typing_indicators_conversation_id_idx
			ON typingserver_typing_indicators(conversation_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to execute downgrade: %w", err)
	}
	return nil
}
