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
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/hearthchat/hearth/setup/config"
)

func main() {
	cfg, err := buildConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	j, err := yaml.Marshal(cfg)
	if err != nil {
		panic(err)
	}

	fmt.Println(string(j))
}

func buildConfig(fs *flag.FlagSet, args []string) (*config.Hearth, error) {
	defaultsForCI := fs.Bool("ci", false, "sane defaults for CI testing")
	serverName := fs.String("server", "", "The name of this deployment")
	dbURI := fs.String("db", "", "The data source to store typing indicators in: file:..., postgres://..., redis://... or memory:")
	logToFile := fs.String("log-dir", "", "Write logs to this directory as well as to stdout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &config.Hearth{}
	cfg.Defaults(true)
	if *serverName != "" {
		cfg.Global.ServerName = *serverName
	}
	if *dbURI != "" {
		cfg.Global.DatabaseOptions.ConnectionString = config.DataSource(*dbURI)
		cfg.TypingServer.Database.ConnectionString = ""
	}
	if *logToFile != "" {
		cfg.Logging = append(cfg.Logging, config.LogrusHook{
			Type:  "file",
			Level: "info",
			Params: map[string]interface{}{
				"path": *logToFile,
			},
		})
	}

	if *defaultsForCI {
		cfg.Global.DatabaseOptions.ConnectionString = "memory:"
		cfg.TypingServer.Database.ConnectionString = ""
		cfg.Global.JetStream.InMemory = true
		cfg.Global.JetStream.StoragePath = ""
		cfg.Logging[0].Level = "trace"
	}

	return cfg, nil
}
