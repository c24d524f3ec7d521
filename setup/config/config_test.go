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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

const testConfig = `
version: 1
global:
  server_name: hearth.test
  database:
    connection_string: file:hearth.db
  jetstream:
    storage_path: ./jetstream
typing_server:
  ttl: 10s
  heartbeat_interval: 8s
  orphaned_actors: fail
directory:
  users:
    - id: alice
      display_name: Alice
      access_token: a
    - id: bob
      display_name: Bob
      access_token: b
  conversations:
    - id: general
      members: [alice, bob, carol]
logging:
  - type: std
    level: debug
`

func TestLoadConfigRelative(t *testing.T) {
	cfg, err := loadConfig("/my/config/dir", []byte(testConfig))
	require.NoError(t, err)

	configErrs := &ConfigErrors{}
	cfg.Verify(configErrs)
	assert.Empty(t, *configErrs)

	assert.Equal(t, "hearth.test", cfg.Global.ServerName)
	assert.Equal(t, Path("/my/config/dir/jetstream"), cfg.Global.JetStream.StoragePath)
	assert.Equal(t, 10*time.Second, cfg.TypingServer.TTL)
	assert.Equal(t, 8*time.Second, cfg.TypingServer.HeartbeatInterval)
	// not given in the file, so defaults survive the unmarshal
	assert.Equal(t, 2*time.Second, cfg.TypingServer.InactivityTimeout)
	assert.Equal(t, OrphanPolicyFail, cfg.TypingServer.OrphanedActors)
	assert.Len(t, cfg.Directory.Users, 2)
	assert.Equal(t, []string{"alice", "bob", "carol"}, cfg.Directory.Conversations[0].Members)
}

func TestLoadConfigWrongVersion(t *testing.T) {
	_, err := loadConfig("/", []byte("version: 0\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config version")
}

func TestGeneratedConfigVerifies(t *testing.T) {
	cfg := &Hearth{}
	cfg.Defaults(true)
	configErrs := &ConfigErrors{}
	cfg.Verify(configErrs)
	assert.Empty(t, *configErrs)

	// a generated config must survive a round trip through the loader
	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	loaded, err := loadConfig("/", out)
	require.NoError(t, err)
	assert.Equal(t, cfg.TypingServer.TTL, loaded.TypingServer.TTL)
	assert.Equal(t, cfg.Directory.Users, loaded.Directory.Users)
}

func TestTypingServerVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *TypingServer)
		wantErr bool
	}{
		{
			name:   "defaults",
			mutate: func(c *TypingServer) {},
		},
		{
			name: "heartbeat slower than ttl",
			mutate: func(c *TypingServer) {
				c.HeartbeatInterval = c.TTL
			},
			wantErr: true,
		},
		{
			name: "missing ttl",
			mutate: func(c *TypingServer) {
				c.TTL = 0
			},
			wantErr: true,
		},
		{
			name: "unknown orphan policy",
			mutate: func(c *TypingServer) {
				c.OrphanedActors = "ignore"
			},
			wantErr: true,
		},
		{
			name: "bad internal API address",
			mutate: func(c *TypingServer) {
				c.InternalAPI.Listen = ":"
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := TypingServer{}
			c.Defaults(false)
			tt.mutate(&c)
			configErrs := &ConfigErrors{}
			c.Verify(configErrs)
			if tt.wantErr {
				assert.NotEmpty(t, *configErrs)
			} else {
				assert.Empty(t, *configErrs)
			}
		})
	}
}

func TestDirectoryVerifyDuplicates(t *testing.T) {
	c := Directory{
		Users: []DirectoryUser{
			{ID: "alice", AccessToken: "x"},
			{ID: "alice", AccessToken: "x"},
		},
		Conversations: []DirectoryConversation{
			{ID: "general", Members: []string{"alice"}},
			{ID: "general"},
		},
	}
	configErrs := &ConfigErrors{}
	c.Verify(configErrs)
	// duplicate user, duplicate token, duplicate conversation, no members
	assert.Len(t, *configErrs, 4)
}

func TestDataSource(t *testing.T) {
	assert.True(t, DataSource("file:hearth.db").IsSQLite())
	assert.True(t, DataSource("postgres://user@localhost/hearth").IsPostgres())
	assert.True(t, DataSource("user=hearth dbname=hearth sslmode=disable").IsPostgres())
	assert.True(t, DataSource("redis://localhost:6379/0").IsRedis())
	assert.True(t, DataSource("memory:").IsMemory())
	assert.False(t, DataSource("memory:").IsPostgres())
}

func TestConfigErrors(t *testing.T) {
	var errs ConfigErrors
	errs.Add("first")
	assert.Equal(t, "first", errs.Error())
	errs.Add("second")
	errs.Add("third")
	assert.Equal(t, "first (and 2 other problems)", errs.Error())
}
