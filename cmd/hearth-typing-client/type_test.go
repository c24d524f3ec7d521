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

package main

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingComposer struct {
	events []string
}

func (r *recordingComposer) OnInput()  { r.events = append(r.events, "input") }
func (r *recordingComposer) OnBlur()   { r.events = append(r.events, "blur") }
func (r *recordingComposer) OnSubmit() { r.events = append(r.events, "submit") }

func TestCompose(t *testing.T) {
	session := &recordingComposer{}
	out := &bytes.Buffer{}
	in := bufio.NewReader(strings.NewReader("hi\x7f\ry\r\r\x1bz\x03ignored"))

	require.NoError(t, compose(in, out, session))
	assert.Equal(t, []string{
		"input", "input", "input", // h, i, backspace
		"submit",
		"input", "submit", // y, enter; the empty enter does nothing
		"blur", "input",
	}, session.events)
	assert.Contains(t, out.String(), "sent: h\r\n")
	assert.Contains(t, out.String(), "sent: y\r\n")
}

func TestComposeEndOfInput(t *testing.T) {
	session := &recordingComposer{}
	require.NoError(t, compose(bufio.NewReader(strings.NewReader("ab")), &bytes.Buffer{}, session))
	assert.Equal(t, []string{"input", "input"}, session.events)
}
