// Package api exposes the tracker over a small HTTP JSON API: call
// control, tracker state and call record queries.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sebas/calltrack/internal/tracker"
	"github.com/sebas/calltrack/internal/tracker/session"
	"github.com/sebas/calltrack/internal/tracker/store"
)

// CallController is the call-control surface the API drives.
// Implemented by tracker.Tracker.
type CallController interface {
	Dial(ctx context.Context, req tracker.DialRequest) (string, error)
	AcceptCall(ctx context.Context, t session.CallType) error
	RejectCall(ctx context.Context) error
	Hangup(ctx context.Context, connID string) error
	Hold(ctx context.Context) error
	Unhold(ctx context.Context) error
	Conference(ctx context.Context) error
	SetDataEnabled(ctx context.Context, enabled bool) error
	Snapshot(ctx context.Context) (tracker.Snapshot, error)
}

// Server provides the HTTP API for the call tracker.
type Server struct {
	addr       string
	httpServer *http.Server
	controller CallController
	records    store.Repository
	startTime  time.Time
}

// NewServer creates the API server.
func NewServer(addr string, controller CallController, records store.Repository) *Server {
	s := &Server{
		addr:       addr,
		controller: controller,
		records:    records,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()

	// Health and state
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/state", s.handleState)

	// Call control
	mux.HandleFunc("/api/v1/calls", s.handleCalls)
	mux.HandleFunc("/api/v1/calls/", s.handleCallByID)
	mux.HandleFunc("/api/v1/answer", s.handleAnswer)
	mux.HandleFunc("/api/v1/reject", s.handleSimpleOp("reject", func(ctx context.Context) error {
		return controller.RejectCall(ctx)
	}))
	mux.HandleFunc("/api/v1/hold", s.handleSimpleOp("hold", controller.Hold))
	mux.HandleFunc("/api/v1/unhold", s.handleSimpleOp("unhold", controller.Unhold))
	mux.HandleFunc("/api/v1/conference", s.handleSimpleOp("conference", controller.Conference))

	// Policy inputs
	mux.HandleFunc("/api/v1/data", s.handleData)

	// Call records
	mux.HandleFunc("/api/v1/records", s.handleRecords)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	slog.Info("[API] Starting HTTP API server", "addr", s.addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[API] Server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts down the server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// --- Health & State ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime).Seconds()
	s.writeJSON(w, map[string]any{
		"status": "ok",
		"uptime": int64(uptime),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := s.controller.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, snap)
}

// --- Call control ---

type dialRequest struct {
	Address   string `json:"address"`
	Video     bool   `json:"video"`
	Emergency bool   `json:"emergency"`
	Private   bool   `json:"private"`
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap, err := s.controller.Snapshot(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		calls := make([]tracker.ConnectionInfo, 0)
		for _, slot := range snap.Slots {
			calls = append(calls, slot.Connections...)
		}
		s.writeJSON(w, calls)

	case http.MethodPost:
		var req dialRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		dr := tracker.DialRequest{
			Address:   req.Address,
			Emergency: req.Emergency,
		}
		if req.Video {
			dr.CallType = session.CallTypeVideo
		}
		if req.Private {
			dr.CLIR = session.CLIRInvocation
		}
		connID, err := s.controller.Dial(r.Context(), dr)
		if err != nil {
			s.writeCallError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		s.writeJSON(w, map[string]any{"connection_id": connID})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCallByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	connID := strings.TrimPrefix(r.URL.Path, "/api/v1/calls/")
	if connID == "" {
		http.Error(w, "Connection ID required", http.StatusBadRequest)
		return
	}
	if err := s.controller.Hangup(r.Context(), connID); err != nil {
		s.writeCallError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"message": "hangup requested", "connection_id": connID})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ct := session.CallTypeAudio
	if r.URL.Query().Get("video") == "true" {
		ct = session.CallTypeVideo
	}
	if err := s.controller.AcceptCall(r.Context(), ct); err != nil {
		s.writeCallError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"message": "answer requested"})
}

func (s *Server) handleSimpleOp(name string, op func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := op(r.Context()); err != nil {
			s.writeCallError(w, err)
			return
		}
		s.writeJSON(w, map[string]any{"message": name + " requested"})
	}
}

// --- Policy inputs ---

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.controller.SetDataEnabled(r.Context(), req.Enabled); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, map[string]any{"data_enabled": req.Enabled})
}

// --- Call records ---

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f := store.Filter{
		Address:   r.URL.Query().Get("address"),
		Direction: r.URL.Query().Get("direction"),
		Cause:     r.URL.Query().Get("cause"),
		Limit:     100,
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			http.Error(w, "Invalid offset", http.StatusBadRequest)
			return
		}
		f.Offset = n
	}

	records, err := s.records.Query(r.Context(), f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	total, err := s.records.Count(r.Context(), f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{
		"total":   total,
		"records": records,
	})
}

// --- Helpers ---

// writeCallError maps validation errors to 409 and unknown IDs to 404.
func (s *Server) writeCallError(w http.ResponseWriter, err error) {
	status := http.StatusConflict
	if errors.Is(err, tracker.ErrConnectionNotFound) || errors.Is(err, tracker.ErrNotRinging) {
		status = http.StatusNotFound
	}
	if errors.Is(err, tracker.ErrInvalidAddress) {
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("[API] Failed to encode JSON", "error", err)
	}
}
