// Package server exposes the recorder and the media library over a local
// HTTP JSON API, which is what the companion UI talks to.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/respirelab/respicapture/internal/analysis"
	"github.com/respirelab/respicapture/internal/audio"
	"github.com/respirelab/respicapture/internal/config"
	"github.com/respirelab/respicapture/internal/dsp"
	"github.com/respirelab/respicapture/internal/session"
	"github.com/respirelab/respicapture/internal/store"
)

// Server wires the capture device, media store and analyzer behind HTTP
// handlers. One recording session runs at a time.
type Server struct {
	cfg      *config.Config
	device   *audio.Device
	st       *store.Store
	analyzer *analysis.Analyzer

	mu      sync.Mutex
	current *session.Session
}

// StatusResponse is the JSON payload for the status endpoint.
type StatusResponse struct {
	Phase          string  `json:"phase"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Amplitude      float64 `json:"amplitude"`
	FailureReason  string  `json:"failure_reason,omitempty"`
}

// StartRequest is the JSON payload for starting a recording.
type StartRequest struct {
	Kind string `json:"kind"`
}

// GenericResponse is the envelope for operations without a richer payload.
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func New(cfg *config.Config, device *audio.Device, st *store.Store, analyzer *analysis.Analyzer) *Server {
	return &Server{
		cfg:      cfg,
		device:   device,
		st:       st,
		analyzer: analyzer,
	}
}

// Handler returns the routing table. Exposed separately from Start so tests
// can drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/record/start", s.handleStart)
	mux.HandleFunc("/api/record/pause", s.handlePause)
	mux.HandleFunc("/api/record/resume", s.handleResume)
	mux.HandleFunc("/api/record/stop", s.handleStop)
	mux.HandleFunc("/api/record/cancel", s.handleCancel)
	mux.HandleFunc("/api/recordings", s.handleRecordings)
	mux.HandleFunc("/api/recordings/", s.handleRecording)
	mux.HandleFunc("/api/clear", s.handleClear)
	return mux
}

// Start runs the server until the listener fails.
func (s *Server) Start() error {
	addr := s.cfg.Server.ListenAddress
	slog.Info("Starting respicapture server", "addr", addr,
		"local_url", fmt.Sprintf("http://%s", addr))
	return http.ListenAndServe(addr, s.Handler())
}

// session returns the session the record endpoints act on, if any.
func (s *Server) session() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	resp := StatusResponse{Phase: string(session.PhaseIdle)}
	if sess := s.session(); sess != nil {
		status := sess.LastStatus()
		resp = StatusResponse{
			Phase:          string(sess.Phase()),
			ElapsedSeconds: sess.Elapsed().Seconds(),
			Amplitude:      status.Amplitude,
			FailureReason:  string(sess.Reason()),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	var req StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
			return
		}
	}
	kind := store.Kind(req.Kind)
	if req.Kind == "" {
		kind = store.Kind(s.cfg.Recording.DefaultKind)
	}

	s.mu.Lock()
	if s.current != nil && !s.current.Phase().Terminal() && s.current.Phase() != session.PhaseIdle {
		phase := s.current.Phase()
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, GenericResponse{
			Success: false,
			Error:   fmt.Sprintf("a recording is already in progress (phase %s)", phase),
			Reason:  string(session.ReasonDeviceBusy),
		})
		return
	}
	sess := session.New(s.device, s.st, session.Options{
		Kind:        kind,
		MinDuration: time.Duration(s.cfg.Recording.MinDurationSeconds * float64(time.Second)),
	})
	s.current = sess
	// Begin runs under the lock so a concurrent start can never observe
	// the new session while it is still Idle and displace it.
	err := sess.Begin()
	s.mu.Unlock()

	if err != nil {
		s.sendSessionError(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Recording started"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, "Recording paused", func(sess *session.Session) error {
		return sess.Pause()
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, "Recording resumed", func(sess *session.Session) error {
		return sess.Resume()
	})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, message string, op func(*session.Session) error) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	sess := s.session()
	if sess == nil {
		writeJSON(w, http.StatusConflict, GenericResponse{
			Success: false,
			Error:   "no recording in progress",
			Reason:  string(session.ReasonInvalidState),
		})
		return
	}
	if err := op(sess); err != nil {
		s.sendSessionError(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: message})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	sess := s.session()
	if sess == nil {
		writeJSON(w, http.StatusConflict, GenericResponse{
			Success: false,
			Error:   "no recording in progress",
			Reason:  string(session.ReasonInvalidState),
		})
		return
	}

	entry, err := sess.Finish()
	if err != nil {
		s.sendSessionError(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if sess := s.session(); sess != nil {
		sess.Cancel()
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Recording cancelled"})
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	entries, err := s.st.List()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []store.RecordingEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recordings":  entries,
		"total_count": len(entries),
	})
}

// handleRecording dispatches /api/recordings/{id}[/audio|/analyze].
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/recordings/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.sendError(w, http.StatusBadRequest, errors.New("recording id is required"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		entry, err := s.st.Get(id)
		if err != nil {
			s.sendError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, entry)

	case action == "" && r.Method == http.MethodDelete:
		if err := s.st.Delete(id); err != nil {
			s.sendError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Recording deleted"})

	case action == "audio" && (r.Method == http.MethodGet || r.Method == http.MethodHead):
		s.streamAudio(w, r, id)

	case action == "analyze" && r.Method == http.MethodPost:
		entry, err := s.analyzer.Analyze(r.Context(), id)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			s.sendError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, entry)

	default:
		s.sendError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (s *Server) streamAudio(w http.ResponseWriter, r *http.Request, id string) {
	entry, err := s.st.Get(id)
	if err != nil {
		s.sendError(w, statusFor(err), err)
		return
	}

	f, err := os.Open(entry.Path)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, fmt.Errorf("failed to open recording: %w", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(w, r, entry.ID+".wav", entry.CreatedAt, f)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if sess := s.session(); sess != nil && !sess.Phase().Terminal() && sess.Phase() != session.PhaseIdle {
		writeJSON(w, http.StatusConflict, GenericResponse{
			Success: false,
			Error:   "cannot clear the library while recording",
			Reason:  string(session.ReasonInvalidState),
		})
		return
	}
	if err := s.st.ClearAll(); err != nil {
		s.sendError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "All recordings deleted"})
}

// sendSessionError reports a failed session operation, carrying the typed
// reason so the UI can react without parsing error text.
func (s *Server) sendSessionError(w http.ResponseWriter, sess *session.Session, err error) {
	reason := session.ReasonInvalidState
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		reason = session.ReasonPermissionDenied
	case errors.Is(err, audio.ErrDeviceBusy):
		reason = session.ReasonDeviceBusy
	case errors.Is(err, store.ErrInvalidInput):
		reason = session.ReasonInvalidInput
	case sess.Phase() == session.PhaseFailed:
		reason = sess.Reason()
	}
	writeJSON(w, statusFor(err), GenericResponse{
		Success: false,
		Error:   err.Error(),
		Reason:  string(reason),
	})
	slog.Error("Recording operation failed", "error", err, "reason", reason)
}

func (s *Server) sendError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, GenericResponse{Success: false, Error: err.Error()})
	if status >= 500 {
		slog.Error("Request failed", "status", status, "error", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, audio.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, audio.ErrDeviceBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, audio.ErrInvalidState),
		errors.Is(err, session.ErrTooShort):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, dsp.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}
