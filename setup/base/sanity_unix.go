//go:build linux || darwin || netbsd || freebsd || openbsd || solaris || dragonfly || aix

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

package base

import (
	"syscall"

	"github.com/sirupsen/logrus"
)

// PlatformSanityChecks warns about process limits that are too low for a
// server holding one long-lived connection per watching client.
func PlatformSanityChecks() {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err == nil && rLimit.Cur < 65535 {
		logrus.Warnf("IMPORTANT: Process file descriptor limit is currently %d, it is recommended to raise the limit for Hearth to at least 65535 so that long-polling and live clients are not refused", rLimit.Cur)
	}
}
