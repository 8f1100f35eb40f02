/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"net/http"

	"github.com/carverauto/mirrord/pkg/models"
)

func (s *APIServer) getStreamURL(w http.ResponseWriter, _ *http.Request) {
	if !s.tracker.IsConnected() {
		s.writeError(w, http.StatusBadRequest, "Not connected")
		return
	}

	url, err := s.store.StreamURL()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *APIServer) getStreamStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Stats())
}

func (s *APIServer) getOptimizationStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.optimizer.OptimizationStats())
}

func (s *APIServer) getOnlineDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.directory.QueryOnline(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// an empty list, never null
	if devices == nil {
		devices = []models.DeviceRecord{}
	}

	s.writeJSON(w, http.StatusOK, devices)
}
