/*
Copyright (c) The llsec Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package admin serves the running engine's neighbor table over HTTP as
JSON, grounded on ptp4u/stats.JSONStats's handleRequest idiom, so
cmd/meshd's "neighbors" subcommand can inspect a live daemon the same way
ptpcheck queries a running ptp4l/sptp process instead of reading state
off disk.
*/
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/meshsec/llsec/nbr"
)

// NeighborView is the wire shape of one entry in the /neighbors response.
type NeighborView struct {
	Addr       string `json:"addr"`
	LocalIndex uint8  `json:"local_index"`
	Status     string `json:"status"`
	PhaseKnown bool   `json:"phase_known"`
	Expiration string `json:"expiration,omitempty"`
}

// Server exposes a read-only view of table over HTTP.
type Server struct {
	table *nbr.Table
	addr  string
}

// NewServer returns a Server that will serve table's contents on addr
// once Start is called.
func NewServer(table *nbr.Table, addr string) *Server {
	return &Server{table: table, addr: addr}
}

func entryView(e *nbr.Entry) NeighborView {
	v := NeighborView{Addr: e.Addr.String(), LocalIndex: e.LocalIndex}
	switch {
	case e.Permanent != nil:
		v.Status = "permanent"
		v.PhaseKnown = e.Permanent.Phase.Known()
		v.Expiration = e.Permanent.Expiration.Format(time.RFC3339)
	case e.Tentative != nil:
		v.Status = e.Tentative.Status.String()
		v.Expiration = e.Tentative.Expiration.Format(time.RFC3339)
	default:
		v.Status = "empty"
	}
	return v
}

func (s *Server) handleNeighbors(w http.ResponseWriter, _ *http.Request) {
	views := []NeighborView{}
	for e := s.table.Head(); e != nil; e = s.table.Next(e) {
		views = append(views, entryView(e))
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		log.WithError(err).Error("admin: failed to encode neighbor snapshot")
	}
}

// Start runs the HTTP server until it errors; callers run this in its
// own goroutine, matching the teacher's fire-and-forget monitoring
// server idiom (ptp4u/stats.JSONStats.Start).
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/neighbors", s.handleNeighbors)
	log.Infof("admin: serving neighbor snapshot on %s", s.addr)
	return http.ListenAndServe(s.addr, mux)
}

// FetchNeighbors queries a running Server's /neighbors endpoint,
// grounded on ptp/sptp/stats.FetchStats's http.Client-with-timeout
// fetch-then-unmarshal shape.
func FetchNeighbors(addr string) ([]NeighborView, error) {
	c := http.Client{Timeout: 2 * time.Second}
	resp, err := c.Get("http://" + addr + "/neighbors")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var views []NeighborView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		return nil, err
	}
	return views, nil
}
