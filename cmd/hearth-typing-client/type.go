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
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hearthchat/hearth/typingclient"
)

const (
	keyCtrlC     = 0x03
	keyCtrlD     = 0x04
	keyEscape    = 0x1b
	keyBackspace = 0x7f
)

func newTypeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "type",
		Short: "Compose messages while telling the conversation that you are typing",
		Long: "Every keystroke counts as input. Enter sends the line, Escape blurs " +
			"the input and Ctrl-C or Ctrl-D quits. Messages themselves are not delivered anywhere.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return fmt.Errorf("type needs an interactive terminal")
			}
			oldState, err := term.MakeRaw(fd)
			if err != nil {
				return err
			}
			defer term.Restore(fd, oldState) // nolint: errcheck

			// logrus would otherwise draw over the line being composed
			logrus.SetOutput(io.Discard)

			session := typingclient.NewSession(conversationID, client)
			defer session.Close()
			return compose(bufio.NewReader(os.Stdin), cmd.OutOrStdout(), session)
		},
	}
}

// composer is the part of a Session that compose drives.
type composer interface {
	OnInput()
	OnBlur()
	OnSubmit()
}

// compose reads keystrokes until the user quits, echoing them in raw mode.
func compose(in io.ByteReader, out io.Writer, session composer) error {
	var message []byte
	for {
		b, err := in.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch b {
		case keyCtrlC, keyCtrlD:
			fmt.Fprint(out, "\r\n")
			return nil
		case '\r', '\n':
			if len(message) == 0 {
				continue
			}
			session.OnSubmit()
			fmt.Fprintf(out, "\r\nsent: %s\r\n", message)
			message = message[:0]
		case keyEscape:
			session.OnBlur()
		case keyBackspace, '\b':
			if len(message) > 0 {
				message = message[:len(message)-1]
				fmt.Fprint(out, "\b \b")
				session.OnInput()
			}
		default:
			if b < 0x20 {
				continue
			}
			message = append(message, b)
			_, _ = out.Write([]byte{b})
			session.OnInput()
		}
	}
}
