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

package api

import "github.com/matrix-org/gomatrixserverlib/spec"

// OutputTypingEvent is published whenever an indicator is written or
// removed. Consumers use it as a change notification and re-read the store;
// it is not a reliable record of who is typing.
type OutputTypingEvent struct {
	Event TypingEvent `json:"event"`
}

type TypingEvent struct {
	ActorID        string `json:"actor_id"`
	ConversationID string `json:"conversation_id"`
	Typing         bool   `json:"typing"`
	// ExpiresAt is only set when Typing is true.
	ExpiresAt spec.Timestamp `json:"expires_at,omitempty"`
}
