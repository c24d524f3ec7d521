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
	"fmt"
	"time"
)

// OrphanPolicy decides what listing does with a live indicator whose actor
// can no longer be resolved.
type OrphanPolicy string

const (
	// OrphanPolicySkip omits the record, logging and counting it.
	OrphanPolicySkip OrphanPolicy = "skip"
	// OrphanPolicyFail fails the whole listing.
	OrphanPolicyFail OrphanPolicy = "fail"
)

type TypingServer struct {
	InternalAPI InternalAPIOptions `yaml:"internal_api"`

	// The database to store typing indicators in. Falls back to the global
	// database when no connection string is given.
	Database DatabaseOptions `yaml:"database"`

	// How long a single heartbeat keeps an indicator alive.
	TTL time.Duration `yaml:"ttl"`

	// How often an actively typing client refreshes its indicator. Must be
	// shorter than the TTL or indicators will flicker between heartbeats.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// How long a client waits without input before it stops typing.
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`

	// How often expired indicators are physically deleted.
	PurgeInterval time.Duration `yaml:"purge_interval"`

	// The longest a client may hold a listing request open waiting for changes.
	MaxLongPollTimeout time.Duration `yaml:"max_long_poll_timeout"`

	// What to do with a live indicator whose actor cannot be found.
	OrphanedActors OrphanPolicy `yaml:"orphaned_actors"`

	// How long a positive membership answer is remembered.
	MembershipCacheLifetime time.Duration `yaml:"membership_cache_lifetime"`

	// The cache used for actor display identities.
	DisplayNameCache struct {
		// The estimated maximum size of the cache in bytes.
		EstimatedMaxSize int64 `yaml:"max_size_estimated"`
		// How long an entry lives before it is fetched again.
		MaxAge time.Duration `yaml:"max_age"`
	} `yaml:"display_name_cache"`
}

func (c *TypingServer) Defaults(generate bool) {
	c.InternalAPI.Listen = "http://localhost:7782"
	c.InternalAPI.Connect = "http://localhost:7782"
	if generate {
		c.Database.ConnectionString = "file:typingserver.db"
	}
	c.TTL = 5 * time.Second
	c.HeartbeatInterval = 4 * time.Second
	c.InactivityTimeout = 2 * time.Second
	c.PurgeInterval = 30 * time.Second
	c.MaxLongPollTimeout = 30 * time.Second
	c.OrphanedActors = OrphanPolicySkip
	c.MembershipCacheLifetime = 10 * time.Second
	c.DisplayNameCache.EstimatedMaxSize = 16 * 1024 * 1024
	c.DisplayNameCache.MaxAge = time.Minute
}

func (c *TypingServer) Verify(configErrs *ConfigErrors) {
	checkURL(configErrs, "typing_server.internal_api.listen", c.InternalAPI.Listen)
	checkURL(configErrs, "typing_server.internal_api.connect", c.InternalAPI.Connect)
	checkNotZero(configErrs, "typing_server.ttl", int64(c.TTL))
	checkPositive(configErrs, "typing_server.ttl", int64(c.TTL))
	checkNotZero(configErrs, "typing_server.heartbeat_interval", int64(c.HeartbeatInterval))
	checkPositive(configErrs, "typing_server.heartbeat_interval", int64(c.HeartbeatInterval))
	checkNotZero(configErrs, "typing_server.inactivity_timeout", int64(c.InactivityTimeout))
	checkPositive(configErrs, "typing_server.inactivity_timeout", int64(c.InactivityTimeout))
	checkPositive(configErrs, "typing_server.purge_interval", int64(c.PurgeInterval))
	checkPositive(configErrs, "typing_server.max_long_poll_timeout", int64(c.MaxLongPollTimeout))
	checkPositive(configErrs, "typing_server.membership_cache_lifetime", int64(c.MembershipCacheLifetime))
	checkPositive(configErrs, "typing_server.display_name_cache.max_size_estimated", c.DisplayNameCache.EstimatedMaxSize)
	if c.HeartbeatInterval >= c.TTL {
		configErrs.Add(fmt.Sprintf(
			"invalid value for config key %q: %s must be shorter than typing_server.ttl (%s)",
			"typing_server.heartbeat_interval", c.HeartbeatInterval, c.TTL,
		))
	}
	switch c.OrphanedActors {
	case OrphanPolicySkip, OrphanPolicyFail:
	default:
		configErrs.Add(fmt.Sprintf(
			"invalid value for config key %q: %q (expected %q or %q)",
			"typing_server.orphaned_actors", c.OrphanedActors, OrphanPolicySkip, OrphanPolicyFail,
		))
	}
}

func (c *TypingServer) verifyDatabase(configErrs *ConfigErrors, global *DatabaseOptions) {
	if c.Database.ConnectionString == "" && global.ConnectionString == "" {
		checkNotEmpty(configErrs, "typing_server.database.connection_string", string(c.Database.ConnectionString))
	}
}

type InternalAPIOptions struct {
	Listen  string `yaml:"listen"`
	Connect string `yaml:"connect"`
}
