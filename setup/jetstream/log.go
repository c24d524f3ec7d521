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

package jetstream

import (
	"github.com/nats-io/nats-server/v2/server"
	"github.com/sirupsen/logrus"
)

var _ server.Logger = &LogAdapter{}

// LogAdapter sends the output of the in-process NATS server to logrus.
// Notices are logged at info level, everything else keeps its level.
type LogAdapter struct {
	entry *logrus.Entry
}

func NewLogAdapter() *LogAdapter {
	return &LogAdapter{
		entry: logrus.StandardLogger().WithField("component", "nats"),
	}
}

func (l *LogAdapter) Noticef(format string, v ...interface{}) { l.entry.Infof(format, v...) }
func (l *LogAdapter) Warnf(format string, v ...interface{})   { l.entry.Warnf(format, v...) }
func (l *LogAdapter) Fatalf(format string, v ...interface{})  { l.entry.Fatalf(format, v...) }
func (l *LogAdapter) Errorf(format string, v ...interface{})  { l.entry.Errorf(format, v...) }
func (l *LogAdapter) Debugf(format string, v ...interface{})  { l.entry.Debugf(format, v...) }
func (l *LogAdapter) Tracef(format string, v ...interface{})  { l.entry.Tracef(format, v...) }
