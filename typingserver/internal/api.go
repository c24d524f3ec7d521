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

package internal

import (
	"context"
	"fmt"
	"sort"

	"github.com/jonboulle/clockwork"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/hearthchat/hearth/internal"
	"github.com/hearthchat/hearth/internal/caching"
	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/typingserver/api"
	"github.com/hearthchat/hearth/typingserver/storage"
)

// Identities are looked up with at most this many requests in flight.
const maxConcurrentLookups = 8

var (
	writesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "typingserver",
			Name:      "writes_total",
			Help:      "Number of typing indicator writes, by operation and whether they changed anything",
		},
		[]string{"op", "changed"},
	)
	orphanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "typingserver",
			Name:      "orphaned_indicators_total",
			Help:      "Number of live typing indicators whose actor could not be found",
		},
	)
	storeFaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "typingserver",
			Name:      "store_faults_total",
			Help:      "Number of failed calls to the typing indicator store",
		},
		[]string{"op"},
	)
	listedTypers = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hearth",
			Subsystem: "typingserver",
			Name:      "listed_typers",
			Help:      "Number of typers returned per live listing",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 25},
		},
	)
)

// Producer publishes typing changes to other processes.
type Producer interface {
	SendTyping(ctx context.Context, ev api.TypingEvent) error
}

// TypingServerInternalAPI implements api.TypingServerInternalAPI
type TypingServerInternalAPI struct {
	Cfg            *config.TypingServer
	DB             storage.Database
	Clock          clockwork.Clock
	Caches         *caching.Caches
	MembershipAPI  api.MembershipAPI
	ActorLookupAPI api.ActorLookupAPI
	// Producer may be nil, in which case nothing is published.
	Producer Producer
}

// Upsert implements api.TypingServerInternalAPI
func (t *TypingServerInternalAPI) Upsert(
	ctx context.Context, req *api.UpsertRequest, res *api.UpsertResponse,
) error {
	trace, ctx := internal.StartRegion(ctx, "TypingServerInternalAPI.Upsert")
	defer trace.EndRegion()
	trace.SetTag("conversation_id", req.ConversationID)

	if err := t.checkMembership(ctx, req.ActorID, req.ConversationID); err != nil {
		return err
	}

	expiresAt := spec.AsTimestamp(t.Clock.Now().Add(t.Cfg.TTL))
	applied, err := t.DB.UpsertTypingIndicator(ctx, req.ActorID, req.ConversationID, expiresAt)
	if err != nil {
		return t.storeFault(trace, "upsert", err)
	}
	writesTotal.WithLabelValues("upsert", fmt.Sprint(applied)).Inc()
	res.ExpiresAt = expiresAt
	res.Applied = applied
	if applied {
		t.publish(ctx, api.TypingEvent{
			ActorID:        req.ActorID,
			ConversationID: req.ConversationID,
			Typing:         true,
			ExpiresAt:      expiresAt,
		})
	}
	return nil
}

// Remove implements api.TypingServerInternalAPI
func (t *TypingServerInternalAPI) Remove(
	ctx context.Context, req *api.RemoveRequest, res *api.RemoveResponse,
) error {
	trace, ctx := internal.StartRegion(ctx, "TypingServerInternalAPI.Remove")
	defer trace.EndRegion()
	trace.SetTag("conversation_id", req.ConversationID)

	if err := t.checkMembership(ctx, req.ActorID, req.ConversationID); err != nil {
		return err
	}

	removed, err := t.DB.RemoveTypingIndicator(ctx, req.ActorID, req.ConversationID)
	if err != nil {
		return t.storeFault(trace, "remove", err)
	}
	writesTotal.WithLabelValues("remove", fmt.Sprint(removed)).Inc()
	res.Removed = removed
	if removed {
		t.publish(ctx, api.TypingEvent{
			ActorID:        req.ActorID,
			ConversationID: req.ConversationID,
		})
	}
	return nil
}

// ListLive implements api.TypingServerInternalAPI
func (t *TypingServerInternalAPI) ListLive(
	ctx context.Context, req *api.ListLiveRequest, res *api.ListLiveResponse,
) error {
	trace, ctx := internal.StartRegion(ctx, "TypingServerInternalAPI.ListLive")
	defer trace.EndRegion()
	trace.SetTag("conversation_id", req.ConversationID)

	if err := t.checkMembership(ctx, req.ViewerID, req.ConversationID); err != nil {
		return err
	}

	now := spec.AsTimestamp(t.Clock.Now())
	indicators, err := t.DB.SelectLiveTypingIndicators(ctx, req.ConversationID, req.ViewerID, now)
	if err != nil {
		return t.storeFault(trace, "listLive", err)
	}

	identities := make([]*api.DisplayIdentity, len(indicators))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i := range indicators {
		i := i
		g.Go(func() error {
			identity, found, err := t.lookupDisplayIdentity(gctx, indicators[i].ActorID)
			if err != nil {
				return fmt.Errorf("t.lookupDisplayIdentity: %w", err)
			}
			if found {
				identities[i] = &identity
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		trace.LogError(err)
		return err
	}

	res.Typers = make([]api.DisplayIdentity, 0, len(indicators))
	res.NextExpiry = 0
	for i, ind := range indicators {
		if identities[i] == nil {
			if err = t.orphaned(ctx, ind); err != nil {
				return err
			}
			continue
		}
		res.Typers = append(res.Typers, *identities[i])
		if res.NextExpiry == 0 || ind.ExpiresAt < res.NextExpiry {
			res.NextExpiry = ind.ExpiresAt
		}
	}
	sort.Slice(res.Typers, func(i, j int) bool {
		if res.Typers[i].DisplayName != res.Typers[j].DisplayName {
			return res.Typers[i].DisplayName < res.Typers[j].DisplayName
		}
		return res.Typers[i].UserID < res.Typers[j].UserID
	})
	listedTypers.Observe(float64(len(res.Typers)))
	return nil
}

// orphaned applies the configured policy to a live indicator whose actor
// does not exist.
func (t *TypingServerInternalAPI) orphaned(ctx context.Context, ind api.TypingIndicator) error {
	orphanedTotal.Inc()
	logger := util.GetLogger(ctx).WithFields(map[string]interface{}{
		"user_id":         ind.ActorID,
		"conversation_id": ind.ConversationID,
	})
	if t.Cfg.OrphanedActors == config.OrphanPolicyFail {
		logger.Error("Typing indicator refers to an unknown actor")
		return &api.ReferentialIntegrityError{
			ActorID:        ind.ActorID,
			ConversationID: ind.ConversationID,
		}
	}
	logger.Warn("Skipping typing indicator for an unknown actor")
	return nil
}

func (t *TypingServerInternalAPI) checkMembership(ctx context.Context, actorID, conversationID string) error {
	if t.Caches != nil && t.Caches.Memberships.IsMember(actorID, conversationID) {
		return nil
	}
	var res api.QueryMembershipResponse
	if err := t.MembershipAPI.QueryMembership(ctx, &api.QueryMembershipRequest{
		ActorID:        actorID,
		ConversationID: conversationID,
	}, &res); err != nil {
		return fmt.Errorf("t.MembershipAPI.QueryMembership: %w", err)
	}
	if !res.IsMember {
		return &api.NotAMemberError{
			ActorID:        actorID,
			ConversationID: conversationID,
		}
	}
	if t.Caches != nil {
		t.Caches.Memberships.StoreMember(actorID, conversationID)
	}
	return nil
}

func (t *TypingServerInternalAPI) lookupDisplayIdentity(ctx context.Context, actorID string) (api.DisplayIdentity, bool, error) {
	if t.Caches != nil {
		if identity, ok := t.Caches.GetDisplayIdentity(actorID); ok {
			return identity, true, nil
		}
	}
	var res api.QueryDisplayIdentityResponse
	if err := t.ActorLookupAPI.QueryDisplayIdentity(ctx, &api.QueryDisplayIdentityRequest{
		ActorID: actorID,
	}, &res); err != nil {
		return api.DisplayIdentity{}, false, err
	}
	if !res.Found {
		return api.DisplayIdentity{}, false, nil
	}
	if t.Caches != nil {
		t.Caches.StoreDisplayIdentity(actorID, res.Identity)
	}
	return res.Identity, true, nil
}

func (t *TypingServerInternalAPI) storeFault(trace internal.Trace, op string, err error) error {
	storeFaultsTotal.WithLabelValues(op).Inc()
	trace.LogError(err)
	return &api.TransientStoreError{Op: op, Err: err}
}

// publish tells other processes about a change. The store is already
// updated, so a failure here only delays viewers until their next poll.
func (t *TypingServerInternalAPI) publish(ctx context.Context, ev api.TypingEvent) {
	if t.Producer == nil {
		return
	}
	if err := t.Producer.SendTyping(ctx, ev); err != nil {
		util.GetLogger(ctx).WithError(err).WithField("conversation_id", ev.ConversationID).Warn("Failed to publish typing change")
	}
}
