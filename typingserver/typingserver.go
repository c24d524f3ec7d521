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

package typingserver

import (
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/hearthchat/hearth/internal/caching"
	"github.com/hearthchat/hearth/internal/httputil"
	"github.com/hearthchat/hearth/internal/sqlutil"
	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/setup/jetstream"
	"github.com/hearthchat/hearth/setup/process"
	"github.com/hearthchat/hearth/typingserver/api"
	"github.com/hearthchat/hearth/typingserver/consumers"
	"github.com/hearthchat/hearth/typingserver/internal"
	"github.com/hearthchat/hearth/typingserver/inthttp"
	"github.com/hearthchat/hearth/typingserver/notifier"
	"github.com/hearthchat/hearth/typingserver/producers"
	"github.com/hearthchat/hearth/typingserver/routing"
	"github.com/hearthchat/hearth/typingserver/storage"
)

// AddInternalRoutes registers HTTP handlers for the internal API. Invokes functions
// on the given input API.
func AddInternalRoutes(router *mux.Router, intAPI api.TypingServerInternalAPI) {
	inthttp.AddRoutes(intAPI, router)
}

// AddPublicRoutes sets up and registers HTTP handlers for the client API.
// typingAPI may be the local implementation or an inthttp client; either
// way the notifier must be fed by this process's JetStream consumer.
func AddPublicRoutes(
	routers httputil.Routers,
	cfg *config.Hearth,
	typingAPI api.TypingServerInternalAPI,
	tokenAPI api.QueryAccessTokenAPI,
	n *notifier.Notifier,
	clock clockwork.Clock,
) {
	routing.Setup(
		routers.Client, typingAPI, tokenAPI, n, clock,
		&cfg.TypingServer, cfg.Global.Metrics.Enabled,
	)
}

// NewNotifier starts a notifier that is kept up to date with every typing
// change published to JetStream, by this process or any other.
func NewNotifier(
	processContext *process.ProcessContext,
	cfg *config.Hearth,
	natsInstance *jetstream.NATSInstance,
	clock clockwork.Clock,
) *notifier.Notifier {
	js, _ := natsInstance.Prepare(processContext, &cfg.Global.JetStream)
	n := notifier.NewNotifier(clock)
	consumer := consumers.NewOutputTypingEventConsumer(
		processContext, &cfg.Global.JetStream, js, n,
	)
	if err := consumer.Start(); err != nil {
		logrus.WithError(err).Panic("failed to start typing server output consumer")
	}
	go func() {
		<-processContext.WaitForShutdown()
		n.Stop()
	}()
	return n
}

// NewInternalAPI returns a concrete implementation of the internal API. Callers
// can call functions directly on the returned API or via an HTTP interface using AddInternalRoutes.
func NewInternalAPI(
	processContext *process.ProcessContext,
	cfg *config.Hearth,
	cm *sqlutil.Connections,
	natsInstance *jetstream.NATSInstance,
	caches *caching.Caches,
	membershipAPI api.MembershipAPI,
	actorLookupAPI api.ActorLookupAPI,
	clock clockwork.Clock,
) *internal.TypingServerInternalAPI {
	db, err := storage.NewDatabase(processContext, cm, &cfg.TypingServer.Database)
	if err != nil {
		logrus.WithError(err).Panicf("failed to connect to typing server db")
	}

	js, _ := natsInstance.Prepare(processContext, &cfg.Global.JetStream)
	producer := &producers.TypingEventProducer{
		Topic:     cfg.Global.JetStream.TopicFor(jetstream.OutputTypingEvent),
		JetStream: js,
	}

	janitor := &internal.Janitor{
		DB:       db,
		Clock:    clock,
		Interval: cfg.TypingServer.PurgeInterval,
	}
	janitor.Start(processContext)

	return &internal.TypingServerInternalAPI{
		Cfg:            &cfg.TypingServer,
		DB:             db,
		Clock:          clock,
		Caches:         caches,
		MembershipAPI:  membershipAPI,
		ActorLookupAPI: actorLookupAPI,
		Producer:       producer,
	}
}
