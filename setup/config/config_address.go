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
	"io/fs"
	"net/url"
	"strconv"
)

type ServerAddress struct {
	Address              string
	Scheme               string
	UnixSocketPermission fs.FileMode
}

func (s ServerAddress) Enabled() bool {
	return s.Address != ""
}

func (s ServerAddress) IsUnixSocket() bool {
	return s.Scheme == "unix"
}

func (s ServerAddress) Network() string {
	if s.IsUnixSocket() {
		return "unix"
	}
	return "tcp"
}

func UnixSocketAddress(path, perm string) (ServerAddress, error) {
	permission, err := strconv.ParseInt(perm, 8, 32)
	if err != nil {
		return ServerAddress{}, err
	}
	return ServerAddress{Address: path, Scheme: "unix", UnixSocketPermission: fs.FileMode(permission)}, nil
}

func HTTPAddress(urlAddress string) (ServerAddress, error) {
	parsedPath, err := url.Parse(urlAddress)
	if err != nil {
		return ServerAddress{}, err
	}
	return ServerAddress{Address: parsedPath.Host, Scheme: parsedPath.Scheme}, nil
}
