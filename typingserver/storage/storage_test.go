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

package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthchat/hearth/internal/sqlutil"
	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/test"
	"github.com/hearthchat/hearth/typingserver/storage"
)

func mustCreateDatabase(t *testing.T, dbType test.DBType) (storage.Database, func()) {
	t.Helper()
	connStr, close := test.PrepareDBConnectionString(t, dbType)
	cm := sqlutil.NewConnectionManager(nil, config.DatabaseOptions{})
	db, err := storage.NewDatabase(nil, cm, &config.DatabaseOptions{
		ConnectionString: config.DataSource(connStr),
	})
	if err != nil {
		t.Fatalf("NewDatabase returned %s", err)
	}
	return db, close
}

// An hour ahead of the wall clock, so that Redis never expires keys on its
// own while a test is running.
func baseTime() spec.Timestamp {
	return spec.AsTimestamp(time.Now().Add(time.Hour))
}

func TestUpsertThenListLive(t *testing.T) {
	alice, bob := test.NewUser(t), test.NewUser(t)
	ctx := context.Background()
	test.WithAllStores(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		conv := test.NewConversation(t, alice, bob)
		now := baseTime()

		applied, err := db.UpsertTypingIndicator(ctx, alice.ID, conv.ID, now+5000)
		require.NoError(t, err)
		assert.True(t, applied)

		live, err := db.SelectLiveTypingIndicators(ctx, conv.ID, bob.ID, now)
		require.NoError(t, err)
		require.Len(t, live, 1)
		assert.Equal(t, alice.ID, live[0].ActorID)
		assert.Equal(t, conv.ID, live[0].ConversationID)
		assert.Equal(t, now+5000, live[0].ExpiresAt)

		// the viewer never sees themselves
		live, err = db.SelectLiveTypingIndicators(ctx, conv.ID, alice.ID, now)
		require.NoError(t, err)
		assert.Empty(t, live)

		// and other conversations are unaffected
		other := test.NewConversation(t, alice, bob)
		live, err = db.SelectLiveTypingIndicators(ctx, other.ID, bob.ID, now)
		require.NoError(t, err)
		assert.Empty(t, live)
	})
}

func TestUpsertKeepsLatestExpiry(t *testing.T) {
	alice, bob := test.NewUser(t), test.NewUser(t)
	ctx := context.Background()
	test.WithAllStores(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		conv := test.NewConversation(t, alice, bob)
		now := baseTime()

		_, err := db.UpsertTypingIndicator(ctx, alice.ID, conv.ID, now+5000)
		require.NoError(t, err)
		applied, err := db.UpsertTypingIndicator(ctx, alice.ID, conv.ID, now+9000)
		require.NoError(t, err)
		assert.True(t, applied)

		// a late-arriving write from another tab loses
		applied, err = db.UpsertTypingIndicator(ctx, alice.ID, conv.ID, now+7000)
		require.NoError(t, err)
		assert.False(t, applied)

		// repeating the same write is harmless
		applied, err = db.UpsertTypingIndicator(ctx, alice.ID, conv.ID, now+9000)
		require.NoError(t, err)
		assert.True(t, applied)

		ind, err := db.SelectTypingIndicator(ctx, alice.ID, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, ind)
		assert.Equal(t, now+9000, ind.ExpiresAt)

		live, err := db.SelectLiveTypingIndicators(ctx, conv.ID, bob.ID, now)
		require.NoError(t, err)
		assert.Len(t, live, 1)
	})
}

func TestExpiredIndicatorIsNotLive(t *testing.T) {
	alice, bob := test.NewUser(t), test.NewUser(t)
	ctx := context.Background()
	test.WithAllStores(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		conv := test.NewConversation(t, alice, bob)
		now := baseTime()

		_, err := db.UpsertTypingIndicator(ctx, alice.ID, conv.ID, now-1)
		require.NoError(t, err)

		live, err := db.SelectLiveTypingIndicators(ctx, conv.ID, bob.ID, now)
		require.NoError(t, err)
		assert.Empty(t, live)

		// expiring exactly now also counts as gone
		live, err = db.SelectLiveTypingIndicators(ctx, conv.ID, bob.ID, now-1)
		require.NoError(t, err)
		assert.Empty(t, live)

		// but nothing was deleted
		ind, err := db.SelectTypingIndicator(ctx, alice.ID, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, ind)
		assert.False(t, ind.Live(now))
	})
}

func TestRemoveTypingIndicator(t *testing.T) {
	alice, bob := test.NewUser(t), test.NewUser(t)
	ctx := context.Background()
	test.WithAllStores(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		conv := test.NewConversation(t, alice, bob)
		now := baseTime()

		removed, err := db.RemoveTypingIndicator(ctx, alice.ID, conv.ID)
		require.NoError(t, err)
		assert.False(t, removed)

		_, err = db.UpsertTypingIndicator(ctx, alice.ID, conv.ID, now+5000)
		require.NoError(t, err)
		_, err = db.UpsertTypingIndicator(ctx, bob.ID, conv.ID, now+5000)
		require.NoError(t, err)

		removed, err = db.RemoveTypingIndicator(ctx, alice.ID, conv.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		ind, err := db.SelectTypingIndicator(ctx, alice.ID, conv.ID)
		require.NoError(t, err)
		assert.Nil(t, ind)

		live, err := db.SelectLiveTypingIndicators(ctx, conv.ID, "", now)
		require.NoError(t, err)
		require.Len(t, live, 1)
		assert.Equal(t, bob.ID, live[0].ActorID)

		removed, err = db.RemoveTypingIndicator(ctx, alice.ID, conv.ID)
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestPurgeExpiredTypingIndicators(t *testing.T) {
	alice, bob, carol := test.NewUser(t), test.NewUser(t), test.NewUser(t)
	ctx := context.Background()
	test.WithAllStores(t, func(t *testing.T, dbType test.DBType) {
		db, close := mustCreateDatabase(t, dbType)
		defer close()
		conv := test.NewConversation(t, alice, bob, carol)
		now := baseTime()

		_, err := db.UpsertTypingIndicator(ctx, alice.ID, conv.ID, now+1000)
		require.NoError(t, err)
		_, err = db.UpsertTypingIndicator(ctx, bob.ID, conv.ID, now+2000)
		require.NoError(t, err)
		_, err = db.UpsertTypingIndicator(ctx, carol.ID, conv.ID, now+3000)
		require.NoError(t, err)

		purged, err := db.PurgeExpiredTypingIndicators(ctx, now+2000)
		require.NoError(t, err)
		assert.Equal(t, int64(2), purged)

		ind, err := db.SelectTypingIndicator(ctx, alice.ID, conv.ID)
		require.NoError(t, err)
		assert.Nil(t, ind)
		ind, err = db.SelectTypingIndicator(ctx, carol.ID, conv.ID)
		require.NoError(t, err)
		assert.NotNil(t, ind)

		purged, err = db.PurgeExpiredTypingIndicators(ctx, now+2000)
		require.NoError(t, err)
		assert.Zero(t, purged)
	})
}
