// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package api implements the public-facing HTTP server for the Leader: it
// decodes requests, acquires the single per-task lock described in §5 for
// the duration of the handler, dispatches to upload/collect, and encodes
// problem documents on failure.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"ppmleader/internal/leader/collect"
	"ppmleader/internal/leader/core"
	"ppmleader/internal/leader/problem"
	"ppmleader/internal/leader/telemetry"
	"ppmleader/internal/leader/upload"
	"ppmleader/internal/leader/wire"
)

// Server is configured with a single task's Leader coordinator. One
// Server instance serves exactly one task; running several tasks means
// running several processes.
type Server struct {
	leader *core.Leader
}

// NewServer wraps a configured Leader coordinator for HTTP serving.
func NewServer(leader *core.Leader) *Server {
	return &Server{leader: leader}
}

// RegisterRoutes wires the Leader's three endpoints plus /metrics onto mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/hpke_config", s.handleHpkeConfig)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/collect", s.handleCollect)
	mux.Handle("/metrics", telemetry.Handler())
}

func (s *Server) handleHpkeConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.leader.Lock()
	summary := s.leader.Hpke.Advertise()
	s.leader.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	defer observeLatency("upload", time.Now())
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		problem.Write(w, problem.New(problem.UnrecognizedMessage, "failed to read request body"), wire.TaskID{}, "upload")
		return
	}
	var report wire.Report
	if err := json.Unmarshal(body, &report); err != nil {
		problem.Write(w, problem.New(problem.UnrecognizedMessage, "malformed report json"), wire.TaskID{}, "upload")
		return
	}

	s.leader.Lock()
	defer s.leader.Unlock()

	if perr := upload.Handle(r.Context(), s.leader, report); perr != nil {
		problem.Write(w, perr, s.leader.Params.TaskID, "upload")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	defer observeLatency("collect", time.Now())
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		problem.Write(w, problem.New(problem.UnrecognizedMessage, "failed to read request body"), wire.TaskID{}, "collect")
		return
	}
	var req wire.CollectRequest
	if err := json.Unmarshal(body, &req); err != nil {
		problem.Write(w, problem.New(problem.UnrecognizedMessage, "malformed collect request json"), wire.TaskID{}, "collect")
		return
	}

	s.leader.Lock()
	defer s.leader.Unlock()

	if req.TaskID != s.leader.Params.TaskID {
		problem.Write(w, problem.New(problem.UnrecognizedTask, "collect references an unknown task"), req.TaskID, "collect")
		return
	}

	resp, perr := collect.Handle(r.Context(), s.leader, req)
	if perr != nil {
		problem.Write(w, perr, s.leader.Params.TaskID, "collect")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func observeLatency(endpoint string, start time.Time) {
	telemetry.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// NewHTTPServer builds the HTTP server on addr with the same timeouts the
// rate limiter's API server uses; the caller drives ListenAndServe and
// graceful Shutdown.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
