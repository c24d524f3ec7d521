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

package jetstream

import (
	"fmt"
	"regexp"
	"time"

	"github.com/nats-io/nats.go"
)

// Header keys set on every message we publish.
const (
	UserID         = "user_id"
	ConversationID = "conversation_id"
	Typing         = "typing"
)

var (
	OutputTypingEvent = "OutputTypingEvent"
)

var safeCharacters = regexp.MustCompile("[^A-Za-z0-9$]+")

func Tokenise(str string) string {
	return safeCharacters.ReplaceAllString(str, "_")
}

// OutputTypingEventSubj returns the subject that typing changes in the given
// conversation are published on, relative to the stream name.
func OutputTypingEventSubj(prefixedStream, conversationID string) string {
	return fmt.Sprintf("%s.%s", prefixedStream, Tokenise(conversationID))
}

var streams = []*nats.StreamConfig{
	{
		Name:      OutputTypingEvent,
		Retention: nats.InterestPolicy,
		Storage:   nats.MemoryStorage,
		// Nothing in this stream is useful once the indicator has lapsed.
		MaxAge: time.Second * 60,
	},
}
