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
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hearthchat/hearth/typingclient"
)

var (
	serverURL      string
	accessToken    string
	conversationID string
	verbose        bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hearth-typing-client",
		Short: "Show and send typing indicators for a Hearth conversation",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8008", "The Hearth server to talk to")
	rootCmd.PersistentFlags().StringVarP(&accessToken, "token", "t", os.Getenv("HEARTH_ACCESS_TOKEN"), "The access token to authenticate with (default $HEARTH_ACCESS_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&conversationID, "conversation", "c", "", "The conversation to type in or watch (required)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log requests and failures")
	_ = rootCmd.MarkPersistentFlagRequired("conversation")

	rootCmd.AddCommand(newTypeCommand(), newWatchCommand(), newListCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() (*typingclient.Client, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("an access token is required, use --token or $HEARTH_ACCESS_TOKEN")
	}
	return typingclient.NewClient(serverURL, accessToken, nil)
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print who is typing right now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			snapshot, err := client.ListLive(cmd.Context(), conversationID, -1, 0)
			if err != nil {
				return err
			}
			if line := typingclient.FormatTypers(snapshot.Typers); line != "" {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Nobody is typing")
			}
			return nil
		},
	}
}
