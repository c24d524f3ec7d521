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

package producers

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/hearthchat/hearth/setup/jetstream"
	"github.com/hearthchat/hearth/typingserver/api"
)

// TypingEventProducer publishes typing changes so that every typing server
// process can wake up its own viewers.
type TypingEventProducer struct {
	Topic     string
	JetStream nats.JetStreamContext
}

func (p *TypingEventProducer) SendTyping(ctx context.Context, ev api.TypingEvent) error {
	msg := nats.NewMsg(jetstream.OutputTypingEventSubj(p.Topic, ev.ConversationID))
	msg.Header.Set(jetstream.UserID, ev.ActorID)
	msg.Header.Set(jetstream.ConversationID, ev.ConversationID)
	msg.Header.Set(jetstream.Typing, strconv.FormatBool(ev.Typing))

	var err error
	msg.Data, err = json.Marshal(api.OutputTypingEvent{Event: ev})
	if err != nil {
		return err
	}

	logger := log.WithFields(log.Fields{
		"user_id":         ev.ActorID,
		"conversation_id": ev.ConversationID,
		"typing":          ev.Typing,
	})
	logger.Tracef("Producing to topic '%s'", msg.Subject)
	if _, err = p.JetStream.PublishMsg(msg, nats.Context(ctx)); err != nil {
		logger.WithError(err).Errorf("Failed to produce to topic '%s'", msg.Subject)
		return err
	}
	return nil
}
