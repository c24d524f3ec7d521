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

package consumers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/setup/jetstream"
	"github.com/hearthchat/hearth/setup/process"
	"github.com/hearthchat/hearth/typingserver/api"
	"github.com/hearthchat/hearth/typingserver/notifier"
)

// OutputTypingEventConsumer feeds typing changes published by any typing
// server process into this process's notifier.
type OutputTypingEventConsumer struct {
	ctx       context.Context
	jetstream nats.JetStreamContext
	topic     string
	durable   string
	notifier  *notifier.Notifier
}

// NewOutputTypingEventConsumer creates a new OutputTypingEventConsumer.
// Call Start() to begin consuming typing changes.
func NewOutputTypingEventConsumer(
	process *process.ProcessContext,
	cfg *config.JetStream,
	js nats.JetStreamContext,
	notifier *notifier.Notifier,
) *OutputTypingEventConsumer {
	// Every process needs to see every change, so each one gets a consumer
	// of its own rather than sharing a durable name.
	instance := jetstream.Tokenise(uuid.NewString())
	return &OutputTypingEventConsumer{
		ctx:       process.Context(),
		jetstream: js,
		topic:     cfg.TopicFor(jetstream.OutputTypingEvent),
		durable:   cfg.Durable("TypingServerNotifier" + instance),
		notifier:  notifier,
	}
}

func (s *OutputTypingEventConsumer) Start() error {
	return jetstream.JetStreamConsumer(
		s.ctx, s.jetstream, s.topic+".>", s.durable, 1,
		s.onMessage, nats.DeliverNew(), nats.InactiveThreshold(time.Minute),
	)
}

func (s *OutputTypingEventConsumer) onMessage(ctx context.Context, msgs []*nats.Msg) bool {
	msg := msgs[0] // Guaranteed to exist if onMessage is called
	var output api.OutputTypingEvent
	if err := json.Unmarshal(msg.Data, &output); err != nil {
		// If the message was invalid, log it and move on to the next message in the stream
		log.WithError(err).Errorf("typing server output log: message parse failure")
		sentry.CaptureException(err)
		return true
	}

	log.WithFields(log.Fields{
		"conversation_id": output.Event.ConversationID,
		"user_id":         output.Event.ActorID,
		"typing":          output.Event.Typing,
	}).Debug("received typing change")

	s.notifier.OnTypingEvent(output.Event)
	return true
}
