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

package storage

import (
	"fmt"

	"github.com/hearthchat/hearth/internal/sqlutil"
	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/setup/process"
	"github.com/hearthchat/hearth/typingserver/storage/inmemory"
	"github.com/hearthchat/hearth/typingserver/storage/postgres"
	"github.com/hearthchat/hearth/typingserver/storage/redis"
	"github.com/hearthchat/hearth/typingserver/storage/sqlite3"
)

// NewDatabase opens the presence store named by the connection string,
// falling back to the global database when the component has none.
func NewDatabase(processCtx *process.ProcessContext, conMan *sqlutil.Connections, dbProperties *config.DatabaseOptions) (Database, error) {
	dbProperties, err := conMan.Resolve(dbProperties)
	if err != nil {
		return nil, err
	}
	switch {
	case dbProperties.ConnectionString.IsMemory():
		return inmemory.NewDatabase(), nil
	case dbProperties.ConnectionString.IsRedis():
		ds, err := redis.NewDatabase(processCtx, dbProperties.ConnectionString)
		if err != nil {
			return nil, err
		}
		return ds, nil
	case dbProperties.ConnectionString.IsSQLite():
		ds, err := sqlite3.NewDatabase(conMan, dbProperties)
		if err != nil {
			return nil, err
		}
		return ds, nil
	case dbProperties.ConnectionString.IsPostgres():
		ds, err := postgres.NewDatabase(conMan, dbProperties)
		if err != nil {
			return nil, err
		}
		return ds, nil
	default:
		return nil, fmt.Errorf("unexpected database type")
	}
}
