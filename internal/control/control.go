// SPDX-License-Identifier: AGPL-3.0-or-later

// Package control implements the local HTTP surface behind the node's
// diagnostic commands: switch transmit test mode, print frame statistics,
// list mesh entries, and force an immediate beacon. The interactive
// console that presents these lives elsewhere; this package is the
// collaborator it (or the ip400node CLI subcommands) calls.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/adrcs/ip400/internal/beacon"
	"github.com/adrcs/ip400/internal/mesh"
	"github.com/adrcs/ip400/internal/radio"
)

const readTimeout = 3 * time.Second

// Stats mirrors radio.Counters in a JSON-friendly, plain-value shape.
type Stats struct {
	TxCount         int64 `json:"tx_count"`
	RxCount         int64 `json:"rx_count"`
	CRCErrors       int64 `json:"crc_errors"`
	Timeouts        int64 `json:"timeouts"`
	OKFrames        int64 `json:"ok_frames"`
	Dropped         int64 `json:"dropped"`
	Duplicates      int64 `json:"duplicates"`
	Beacons         int64 `json:"beacons"`
	Repeated        int64 `json:"repeated"`
	PLLErrors       int64 `json:"pll_errors"`
	VCOErrors       int64 `json:"vco_errors"`
	SequencerErrors int64 `json:"sequencer_errors"`
}

// MeshEntry mirrors mesh.Entry in a JSON-friendly shape.
type MeshEntry struct {
	State      string `json:"state"`
	Call       uint32 `json:"call"`
	Lower      uint16 `json:"lower"`
	NextExpSeq uint32 `json:"next_expected_sequence"`
	RSSI       int16  `json:"rssi_dbm"`
	LastHeard  string `json:"last_heard"`
	Capability byte   `json:"capability"`
	TXPower    int8   `json:"tx_power_dbm"`
	HopCount   uint8  `json:"hop_count"`
}

// TestModeRequest is the body of POST /v1/testmode.
type TestModeRequest struct {
	Mode string `json:"mode"` // "off", "cw", or "prbs"
}

var modeByName = map[string]radio.TestMode{
	"off":  radio.TestOff,
	"cw":   radio.TestCW,
	"prbs": radio.TestPRBS,
}

// ErrUnknownTestMode indicates a TestModeRequest.Mode outside {off,cw,prbs}.
var ErrUnknownTestMode = errors.New("control: unknown test mode")

// Server exposes the node's diagnostic surface over HTTP.
type Server struct {
	Engine   *radio.Engine
	Counters *radio.Counters
	Mesh     *mesh.Table
	Beacon   *beacon.Emitter

	httpServer *http.Server
}

// NewServer builds a control HTTP server bound to addr.
func NewServer(addr string, engine *radio.Engine, counters *radio.Counters, meshTable *mesh.Table, emitter *beacon.Emitter) *Server {
	s := &Server{Engine: engine, Counters: counters, Mesh: meshTable, Beacon: emitter}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/mesh", s.handleMesh)
	mux.HandleFunc("POST /v1/testmode", s.handleTestMode)
	mux.HandleFunc("POST /v1/beacon", s.handleBeacon)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readTimeout,
	}
	return s
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.httpServer.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	c := s.Counters
	writeJSON(w, Stats{
		TxCount:         c.TxCount.Load(),
		RxCount:         c.RxCount.Load(),
		CRCErrors:       c.CRCErrors.Load(),
		Timeouts:        c.Timeouts.Load(),
		OKFrames:        c.OKFrames.Load(),
		Dropped:         c.Dropped.Load(),
		Duplicates:      c.Duplicates.Load(),
		Beacons:         c.Beacons.Load(),
		Repeated:        c.Repeated.Load(),
		PLLErrors:       c.PLLErrors.Load(),
		VCOErrors:       c.VCOErrors.Load(),
		SequencerErrors: c.SequencerErrors.Load(),
	})
}

func (s *Server) handleMesh(w http.ResponseWriter, _ *http.Request) {
	entries := s.Mesh.List()
	out := make([]MeshEntry, len(entries))
	for i, e := range entries {
		out[i] = MeshEntry{
			State:      e.State.String(),
			Call:       e.Addr.Call,
			Lower:      e.Addr.Lower,
			NextExpSeq: e.NextExpSeq,
			RSSI:       e.RSSI,
			LastHeard:  e.LastHeard.UTC().Format(time.RFC3339),
			Capability: e.Capability,
			TXPower:    e.TXPower,
			HopCount:   e.HopCount,
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleTestMode(w http.ResponseWriter, r *http.Request) {
	var req TestModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode, ok := modeByName[req.Mode]
	if !ok {
		http.Error(w, ErrUnknownTestMode.Error(), http.StatusBadRequest)
		return
	}
	s.Engine.RequestTestMode(mode)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBeacon(w http.ResponseWriter, _ *http.Request) {
	f := s.Beacon.Force()
	if f == nil {
		http.Error(w, "beacon emitter not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, struct {
		Sequence uint32 `json:"sequence"`
	}{f.Sequence})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
