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

package sqlutil

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/setup/process"
)

// Connections hands out one *sql.DB and Writer per connection string, so
// that components sharing a database also share its writer.
type Connections struct {
	globalConfig        config.DatabaseOptions
	processContext      *process.ProcessContext
	mu                  sync.Mutex
	existingConnections map[config.DataSource]*con
}

type con struct {
	db     *sql.DB
	writer Writer
}

func NewConnectionManager(processCtx *process.ProcessContext, globalConfig config.DatabaseOptions) *Connections {
	return &Connections{
		globalConfig:        globalConfig,
		processContext:      processCtx,
		existingConnections: make(map[config.DataSource]*con),
	}
}

// Resolve returns the options that Connection would use for the given
// component options, falling back to the global database.
func (c *Connections) Resolve(dbProperties *config.DatabaseOptions) (*config.DatabaseOptions, error) {
	if dbProperties.ConnectionString == "" {
		dbProperties = &c.globalConfig
		// If we still don't have a connection string, that's a problem
		if dbProperties.ConnectionString == "" {
			return nil, fmt.Errorf("no database connections configured")
		}
	}
	return dbProperties, nil
}

func (c *Connections) Connection(dbProperties *config.DatabaseOptions) (*sql.DB, Writer, error) {
	dbProperties, err := c.Resolve(dbProperties)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.existingConnections[dbProperties.ConnectionString]; ok {
		return existing.db, existing.writer, nil
	}

	writer := NewDummyWriter()
	if dbProperties.ConnectionString.IsSQLite() {
		writer = NewExclusiveWriter()
	}

	// Open a new database connection using the supplied config.
	db, err := Open(dbProperties, writer)
	if err != nil {
		return nil, nil, err
	}
	c.existingConnections[dbProperties.ConnectionString] = &con{db: db, writer: writer}
	if c.processContext != nil {
		// Wait for Hearth to shut down to cleanly close the database connection.
		c.processContext.ComponentStarted()
		go func() {
			<-c.processContext.WaitForShutdown()
			_ = db.Close()
			c.processContext.ComponentFinished()
		}()
	}
	return db, writer, nil
}
