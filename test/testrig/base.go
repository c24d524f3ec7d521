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

package testrig

import (
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/setup/jetstream"
	"github.com/hearthchat/hearth/setup/process"
	"github.com/hearthchat/hearth/test"
)

// CreateConfig returns a config whose typing store is of the given type and
// whose NATS server runs in-process and in memory. The returned function
// shuts the process down and cleans up the database.
func CreateConfig(t *testing.T, dbType test.DBType) (*config.Hearth, *process.ProcessContext, func()) {
	var cfg config.Hearth
	cfg.Defaults(false)
	cfg.Global.ServerName = "test"
	cfg.Global.JetStream.InMemory = true
	cfg.Global.JetStream.NoLog = true
	cfg.Global.JetStream.StoragePath = config.Path(t.TempDir())
	// use a distinct prefix else concurrent runs of different store types clash
	cfg.Global.JetStream.TopicPrefix = fmt.Sprintf("Test_%d_", dbType)

	connStr, closeDB := test.PrepareDBConnectionString(t, dbType)
	cfg.Global.DatabaseOptions = config.DatabaseOptions{
		ConnectionString:   config.DataSource(connStr),
		MaxOpenConnections: 10,
		MaxIdleConnections: 2,
	}

	processCtx := process.NewProcessContext()
	return &cfg, processCtx, func() {
		processCtx.ShutdownHearth()
		processCtx.WaitForComponentsToFinish()
		closeDB()
	}
}

// Prepare starts the in-process NATS server for cfg.
func Prepare(processCtx *process.ProcessContext, cfg *config.Hearth) (*jetstream.NATSInstance, nats.JetStreamContext, *nats.Conn) {
	natsInstance := &jetstream.NATSInstance{}
	js, jc := natsInstance.Prepare(processCtx, &cfg.Global.JetStream)
	return natsInstance, js, jc
}
