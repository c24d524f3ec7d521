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

package postgres

import (
	// Import the postgres database driver.
	_ "github.com/lib/pq"

	"github.com/hearthchat/hearth/internal/sqlutil"
	"github.com/hearthchat/hearth/setup/config"
	"github.com/hearthchat/hearth/typingserver/storage/shared"
)

// NewDatabase opens the typing indicators table in a postgres database.
func NewDatabase(conMan *sqlutil.Connections, dbProperties *config.DatabaseOptions) (*shared.Database, error) {
	db, writer, err := conMan.Connection(dbProperties)
	if err != nil {
		return nil, err
	}
	indicators, err := NewPostgresTypingIndicatorsTable(db)
	if err != nil {
		return nil, err
	}
	return &shared.Database{
		DB:               db,
		Writer:           writer,
		TypingIndicators: indicators,
	}, nil
}
