// Copyright 2024 Google LLC. All Rights Reserved.
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

// Package http serves the debug information of loaded applications.
package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
)

// Source is what the server reports on.
type Source interface {
	// LastLoaded returns the debug info of the most recently loaded
	// application, if there is one.
	LastLoaded() (api.DebugInfo, bool)

	// Reports returns the load reports of all applications checked so far.
	Reports() []api.Report
}

// Server is the handler implementation of the debug server.
type Server struct {
	s Source
}

// NewServer creates a new server reporting on s.
func NewServer(s Source) *Server {
	return &Server{s: s}
}

// getDebugInfo returns the debug info of the last loaded application as JSON.
func (s *Server) getDebugInfo(w http.ResponseWriter, r *http.Request) {
	d, ok := s.s.LastLoaded()
	if !ok {
		http.Error(w, "no application loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, d)
}

// getDebugLink returns the raw .gnu_debuglink contents of the last loaded
// application.
func (s *Server) getDebugLink(w http.ResponseWriter, r *http.Request) {
	d, ok := s.s.LastLoaded()
	if !ok {
		http.Error(w, "no application loaded", http.StatusNotFound)
		return
	}
	if len(d.DebugLink) == 0 {
		http.Error(w, "application has no debug link", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(d.DebugLink); err != nil {
		glog.Errorf("w.Write(): %v", err)
	}
}

func (s *Server) getReports(w http.ResponseWriter, r *http.Request) {
	reps := s.s.Reports()
	if reps == nil {
		reps = []api.Report{}
	}
	writeJSON(w, reps)
}

func writeJSON(w http.ResponseWriter, v any) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %q", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(js); err != nil {
		glog.Errorf("w.Write(): %v", err)
	}
}

// RegisterHandlers registers HTTP handlers for the debug endpoints.
func (s *Server) RegisterHandlers(r *mux.Router) {
	r.HandleFunc(fmt.Sprintf("/%s", api.HTTPGetDebugInfo), s.getDebugInfo).Methods("GET")
	r.HandleFunc(fmt.Sprintf("/%s", api.HTTPGetDebugLink), s.getDebugLink).Methods("GET")
	r.HandleFunc(fmt.Sprintf("/%s", api.HTTPGetReports), s.getReports).Methods("GET")
}
