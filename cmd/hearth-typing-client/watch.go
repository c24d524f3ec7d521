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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthchat/hearth/typingclient"
	"github.com/hearthchat/hearth/typingserver/api"
)

// How often the ellipsis after the typing line moves on.
const dotsInterval = 300 * time.Millisecond

func newWatchCommand() *cobra.Command {
	var poll bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow who is typing until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			watcher := typingclient.NewWatcher(client)
			watcher.DisableLive = poll
			err = watch(ctx, watcher, cmd.OutOrStdout())
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&poll, "poll", false, "Long-poll instead of using the live socket")
	return cmd
}

// watch redraws a single status line with the current typers.
func watch(ctx context.Context, watcher *typingclient.Watcher, out io.Writer) error {
	var mu sync.Mutex
	line := ""
	render := func(frame int) {
		mu.Lock()
		defer mu.Unlock()
		if line == "" {
			fmt.Fprint(out, "\r\033[K")
			return
		}
		fmt.Fprintf(out, "\r\033[K%s%s", line, typingclient.Dots(frame))
	}

	go func() {
		ticker := time.NewTicker(dotsInterval)
		defer ticker.Stop()
		for frame := 0; ; frame++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				render(frame)
			}
		}
	}()

	err := watcher.Watch(ctx, conversationID, func(snapshot api.TypingSnapshot) {
		mu.Lock()
		line = typingclient.FormatTypers(snapshot.Typers)
		mu.Unlock()
		render(0)
	})
	fmt.Fprintln(out)
	return err
}
