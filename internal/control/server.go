package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/scraperd/internal/core/domain"
	"github.com/vietddude/scraperd/internal/infra/storage"
	"github.com/vietddude/scraperd/internal/scraping/session"
)

// SystemHealthLabel is the coarse label returned by the analytics query.
type SystemHealthLabel string

const (
	HealthExcellent SystemHealthLabel = "EXCELLENT"
	HealthGood      SystemHealthLabel = "GOOD"
	HealthFair      SystemHealthLabel = "FAIR"
	HealthPoor      SystemHealthLabel = "POOR"
)

// Server provides the operator HTTP endpoints.
type Server struct {
	o      *Orchestrator
	server *http.Server
}

// NewServer creates the control server.
func NewServer(o *Orchestrator, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		o: o,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/api/risk", s.handleRisk)
	mux.HandleFunc("/api/analytics", s.handleAnalytics)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleSessions starts a new session.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req session.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Type == "" {
		req.Type = domain.SessionTypeMetrics
	}

	sess, assessment, err := s.o.manager.StartSession(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if sess == nil {
		// Blocked by the pre-flight gate.
		writeJSON(w, http.StatusConflict, map[string]any{
			"started": false,
			"risk":    assessment,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"started": true,
		"session": sess,
		"risk":    assessment,
	})
}

// handleSessionByID serves GET /api/sessions/{id} and
// POST /api/sessions/{id}/action.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.getSession(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "action" && r.Method == http.MethodPost:
		s.controlSession(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := s.o.manager.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) controlSession(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.o.manager.Control(r.Context(), id, session.Action(strings.ToUpper(req.Action)))
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if errors.Is(err, session.ErrIllegalTransition) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":    err.Error(),
				"previous": result.Previous,
				"current":  result.Current,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRisk runs the pre-flight assessment without starting anything.
func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req struct {
		Type       domain.SessionType `json:"type"`
		AccountIDs []string           `json:"account_ids"`
		Force      bool               `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	accounts := make([]domain.Account, 0, len(req.AccountIDs))
	for _, id := range req.AccountIDs {
		accounts = append(accounts, domain.Account{ID: id})
	}
	assessment := s.o.assessor.Assess(r.Context(), accounts, req.Type, req.Force)
	writeJSON(w, http.StatusOK, assessment)
}

// handleAnalytics returns current patterns and the system health label.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	snapshot := s.o.analyzer.Snapshot()

	label := HealthExcellent
	for _, p := range snapshot {
		switch p.Impact {
		case domain.ImpactCritical:
			label = HealthPoor
		case domain.ImpactHigh:
			if label != HealthPoor {
				label = HealthFair
			}
		default:
			if label == HealthExcellent {
				label = HealthGood
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patterns":      snapshot,
		"pattern_count": len(snapshot),
		"system_health": label,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.o.db != nil {
		if err := s.o.db.Health(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
