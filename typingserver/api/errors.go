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

import (
	"fmt"
)

// ErrNotAMember matches any *NotAMemberError with errors.Is.
var ErrNotAMember error = &NotAMemberError{}

// NotAMemberError is returned when the acting user is not a member of the
// conversation they tried to signal or read typing in.
type NotAMemberError struct {
	ActorID        string
	ConversationID string
}

func (e *NotAMemberError) Error() string {
	return fmt.Sprintf("%s is not a member of %s", e.ActorID, e.ConversationID)
}

func (e *NotAMemberError) Is(target error) bool {
	_, ok := target.(*NotAMemberError)
	return ok
}

// ReferentialIntegrityError is returned by ListLive when a live indicator
// refers to an actor that the actor lookup does not know, and the server is
// configured to fail rather than skip such indicators.
type ReferentialIntegrityError struct {
	ActorID        string
	ConversationID string
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("typing indicator in %s refers to unknown actor %s", e.ConversationID, e.ActorID)
}

// TransientStoreError wraps a failure of the storage backend. Callers should
// not retry inline: a client heartbeat will repeat the write shortly and the
// TTL bounds any removal that was lost.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("typing store %s failed: %s", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}
