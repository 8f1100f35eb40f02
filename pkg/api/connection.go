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
	"encoding/json"
	"net/http"
)

// initializeRequest is the body of POST /connection/initialize.
type initializeRequest struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

func (s *APIServer) postInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	if req.DeviceID == "" || req.DeviceName == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "deviceId and deviceName are required")
		return
	}

	if err := s.tracker.InitializeConnection(r.Context(), req.DeviceID, req.DeviceName); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeSuccess(w)
}

func (s *APIServer) postConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.HandleClientConnection(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeSuccess(w)
}

func (s *APIServer) postDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.HandleClientDisconnection(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeSuccess(w)
}

func (s *APIServer) postHeartbeat(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.UpdateHeartbeat(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeSuccess(w)
}

func (s *APIServer) getConnectionStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.ConnectionStatus())
}
