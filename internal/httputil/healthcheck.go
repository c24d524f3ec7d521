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

package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/hearthchat/hearth/setup/process"
)

// healthResponse is returned on requests to /_hearth/monitor/health
type healthResponse struct {
	Code   int      `json:"code"`
	Errors []string `json:"errors,omitempty"`
}

// HealthCheckHandler reports 503 once any component has marked the process
// as degraded, e.g. because it lost its database.
func HealthCheckHandler(processCtx *process.ProcessContext) http.HandlerFunc {
	return func(rw http.ResponseWriter, _ *http.Request) {
		resp := &healthResponse{
			Code: http.StatusOK,
		}
		if degraded, reasons := processCtx.IsDegraded(); degraded {
			resp.Code = http.StatusServiceUnavailable
			resp.Errors = reasons
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(resp.Code)
		if err := json.NewEncoder(rw).Encode(resp); err != nil {
			logrus.WithError(err).Error("unable to encode health response")
		}
	}
}
