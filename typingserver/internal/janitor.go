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

package internal

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/sirupsen/logrus"

	"github.com/hearthchat/hearth/setup/process"
	"github.com/hearthchat/hearth/typingserver/storage"
)

// Janitor deletes expired typing indicators. Listing already ignores them,
// so this only keeps the store from growing.
type Janitor struct {
	DB       storage.Database
	Clock    clockwork.Clock
	Interval time.Duration
}

// Start runs the janitor until the process shuts down.
func (j *Janitor) Start(process *process.ProcessContext) {
	if j.Interval <= 0 {
		return
	}
	process.ComponentStarted()
	go func() {
		defer process.ComponentFinished()
		ticker := j.Clock.NewTicker(j.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-process.WaitForShutdown():
				return
			case <-ticker.Chan():
				if _, err := j.PurgeOnce(process.Context()); err != nil {
					logrus.WithError(err).Warn("Failed to purge expired typing indicators")
					process.Degraded(err)
				}
			}
		}
	}()
}

// PurgeOnce deletes everything that has expired by now.
func (j *Janitor) PurgeOnce(ctx context.Context) (int64, error) {
	purged, err := j.DB.PurgeExpiredTypingIndicators(ctx, spec.AsTimestamp(j.Clock.Now()))
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		logrus.WithField("purged", purged).Debug("Purged expired typing indicators")
	}
	return purged, nil
}
