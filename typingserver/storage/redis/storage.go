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

// Package redis stores typing indicators in Redis. Each conversation is one
// sorted set whose members are actor IDs scored by expiry, and the key itself
// expires when its latest indicator does.
package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/matrix-org/gomatrixserverlib/spec"
	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/setup/process"
	"github.com/hearthchat/hearth/typingserver/api"
)

const keyPrefix = "hearth:typing:"

// upsertScript writes the indicator unless a later one is already stored,
// then pushes the key expiry out to the latest indicator in the set.
var upsertScript = redis.NewScript(`
local current = redis.call('ZSCORE', KEYS[1], ARGV[1])
if current and tonumber(current) > tonumber(ARGV[2]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
local latest = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
redis.call('PEXPIREAT', KEYS[1], latest[2])
return 1
`)

type Database struct {
	client *redis.Client
}

// NewDatabase connects to the Redis server named by a redis:// or rediss://
// connection string. The client is closed when the process shuts down.
func NewDatabase(processCtx *process.ProcessContext, dataSource config.DataSource) (*Database, error) {
	opts, err := redis.ParseURL(string(dataSource))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "redis.ParseURL")
	}
	client := redis.NewClient(opts)
	if err = client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, pkgerrors.Wrap(err, "redis ping")
	}
	if processCtx != nil {
		processCtx.ComponentStarted()
		go func() {
			<-processCtx.WaitForShutdown()
			_ = client.Close()
			processCtx.ComponentFinished()
		}()
	}
	return &Database{client: client}, nil
}

func conversationKey(conversationID string) string {
	return keyPrefix + conversationID
}

func (d *Database) UpsertTypingIndicator(
	ctx context.Context, actorID, conversationID string, expiresAt spec.Timestamp,
) (bool, error) {
	applied, err := upsertScript.Run(
		ctx, d.client, []string{conversationKey(conversationID)},
		actorID, strconv.FormatUint(uint64(expiresAt), 10),
	).Int()
	if err != nil {
		return false, pkgerrors.Wrap(err, "UpsertTypingIndicator")
	}
	return applied == 1, nil
}

func (d *Database) RemoveTypingIndicator(
	ctx context.Context, actorID, conversationID string,
) (bool, error) {
	n, err := d.client.ZRem(ctx, conversationKey(conversationID), actorID).Result()
	if err != nil {
		return false, pkgerrors.Wrap(err, "RemoveTypingIndicator")
	}
	return n > 0, nil
}

func (d *Database) SelectTypingIndicator(
	ctx context.Context, actorID, conversationID string,
) (*api.TypingIndicator, error) {
	score, err := d.client.ZScore(ctx, conversationKey(conversationID), actorID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "SelectTypingIndicator")
	}
	return &api.TypingIndicator{
		ActorID:        actorID,
		ConversationID: conversationID,
		ExpiresAt:      spec.Timestamp(score),
	}, nil
}

func (d *Database) SelectLiveTypingIndicators(
	ctx context.Context, conversationID, excludingActorID string, now spec.Timestamp,
) ([]api.TypingIndicator, error) {
	members, err := d.client.ZRangeByScoreWithScores(ctx, conversationKey(conversationID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatUint(uint64(now), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "SelectLiveTypingIndicators")
	}
	var result []api.TypingIndicator
	for _, member := range members {
		actorID, ok := member.Member.(string)
		if !ok || actorID == excludingActorID {
			continue
		}
		result = append(result, api.TypingIndicator{
			ActorID:        actorID,
			ConversationID: conversationID,
			ExpiresAt:      spec.Timestamp(member.Score),
		})
	}
	return result, nil
}

// PurgeExpiredTypingIndicators trims lapsed members from every conversation.
// Keys whose indicators have all lapsed are already gone by then.
func (d *Database) PurgeExpiredTypingIndicators(
	ctx context.Context, now spec.Timestamp,
) (int64, error) {
	var purged int64
	upTo := strconv.FormatUint(uint64(now), 10)
	iter := d.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := d.client.ZRemRangeByScore(ctx, iter.Val(), "-inf", upTo).Result()
		if err != nil {
			return purged, pkgerrors.Wrap(err, "PurgeExpiredTypingIndicators")
		}
		purged += n
	}
	if err := iter.Err(); err != nil {
		return purged, pkgerrors.Wrap(err, "PurgeExpiredTypingIndicators")
	}
	return purged, nil
}
