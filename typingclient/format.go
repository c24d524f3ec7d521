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

package typingclient

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hearthchat/hearth/typingserver/api"
)

// FormatTypers renders the typing line shown under a conversation, or ""
// when nobody is typing. Names are sorted so that the line does not jump
// around as snapshots arrive.
func FormatTypers(typers []api.DisplayIdentity) string {
	if len(typers) == 0 {
		return ""
	}
	names := make([]string, 0, len(typers))
	for _, typer := range typers {
		name := typer.DisplayName
		if name == "" {
			name = typer.UserID
		}
		names = append(names, name)
	}
	sort.Strings(names)
	verb := "is"
	if len(names) > 1 {
		verb = "are"
	}
	return fmt.Sprintf("%s %s typing", strings.Join(names, ", "), verb)
}

// Dots returns the animated ellipsis for the given animation frame: "",
// ".", "..", "..." and round again.
func Dots(frame int) string {
	return strings.Repeat(".", ((frame%4)+4)%4)
}
