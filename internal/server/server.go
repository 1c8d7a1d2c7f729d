// Package server exposes the moderation engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quietroom/warden/internal/classify"
	"github.com/quietroom/warden/internal/denylist"
	"github.com/quietroom/warden/internal/engine"
	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/policy"
	"github.com/quietroom/warden/internal/ratelimit"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr         string
	ConfigPath   string
	DenylistPath string

	// RateLimit caps requests per client IP. Zero values disable it.
	RateLimit ratelimit.Config
}

// Server routes moderation requests to an engine instance.
type Server struct {
	engine     *engine.Engine
	classifier classify.Classifier
	cfg        Config
	httpSrv    *http.Server
}

// New builds the router. The classifier is kept so hot-reload can rebuild
// policies without dropping the classifier connection settings.
func New(eng *engine.Engine, cls classify.Classifier, cfg Config) *Server {
	s := &Server{
		engine:     eng,
		classifier: cls,
		cfg:        cfg,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if cfg.RateLimit.Enabled() {
		r.Use(ratelimit.Middleware(ratelimit.New(cfg.RateLimit)))
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/evaluate", s.handleEvaluate)
		r.Get("/stats", s.handleStats)
		r.Post("/appeals", s.handleSubmitAppeal)
		r.Get("/appeals", s.handleListAppeals)
		r.Post("/appeals/{id}/review", s.handleReviewAppeal)
	})

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Serve blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ReloadPolicy re-reads the config and denylist files and swaps them into
// the engine. Called by the hot-reloader on file change.
func (s *Server) ReloadPolicy() error {
	cfg, err := policy.LoadConfig(s.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	dl, err := denylist.Load(s.cfg.DenylistPath)
	if err != nil {
		return fmt.Errorf("failed to reload denylist: %w", err)
	}
	return s.engine.Reload(cfg, dl, s.classifier)
}

type evaluateRequest struct {
	UserID      string           `json:"user_id"`
	Content     string           `json:"content"`
	Track       string           `json:"track"`
	Room        *model.RoomRules `json:"room,omitempty"`
	SharedRoom  bool             `json:"shared_room"`
	ReportCount int              `json:"report_count"`
	History     []model.Message  `json:"history,omitempty"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	track := model.Track(req.Track)
	if track == "" {
		track = model.TrackPermissive
	}
	if track != model.TrackPermissive && track != model.TrackStrict {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown track %q", req.Track))
		return
	}

	res, err := s.engine.Evaluate(r.Context(), req.UserID, req.Content, track, model.EvalContext{
		History:     req.History,
		Room:        req.Room,
		SharedRoom:  req.SharedRoom,
		ReportCount: req.ReportCount,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warden: evaluate failed: %v\n", err)
		writeError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type submitAppealRequest struct {
	UserID      string `json:"user_id"`
	ViolationID string `json:"violation_id"`
	Text        string `json:"text"`
}

func (s *Server) handleSubmitAppeal(w http.ResponseWriter, r *http.Request) {
	var req submitAppealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.ViolationID == "" {
		writeError(w, http.StatusBadRequest, "user_id and violation_id are required")
		return
	}

	id, err := s.engine.SubmitAppeal(req.UserID, req.ViolationID, req.Text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warden: submit appeal failed: %v\n", err)
		writeError(w, http.StatusInternalServerError, "could not record appeal")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"appeal_id": id})
}

type reviewAppealRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason"`
}

func (s *Server) handleReviewAppeal(w http.ResponseWriter, r *http.Request) {
	appealID := chi.URLParam(r, "id")

	var req reviewAppealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision := model.AppealResult(req.Decision)
	if decision != model.AppealApproved && decision != model.AppealDenied {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decision must be %q or %q", model.AppealApproved, model.AppealDenied))
		return
	}

	if !s.engine.ReviewAppeal(r.Context(), appealID, req.ReviewerID, decision, req.Reason) {
		writeError(w, http.StatusNotFound, "appeal not found or already decided")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"appeal_id": appealID,
		"status":    string(decision),
	})
}

func (s *Server) handleListAppeals(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Appeals().List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warden: list appeals failed: %v\n", err)
		writeError(w, http.StatusInternalServerError, "could not list appeals")
		return
	}
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		filtered := list[:0]
		for _, a := range list {
			if a.UserID == userID {
				filtered = append(filtered, a)
			}
		}
		list = filtered
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warden: stats failed: %v\n", err)
		writeError(w, http.StatusInternalServerError, "could not compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "warden: write response: %v\n", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
