package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/swexcamp/adventd/internal/feed"
	"github.com/swexcamp/adventd/internal/registry"
	"github.com/swexcamp/adventd/internal/storage"
	"github.com/swexcamp/adventd/internal/timing"
)

type Server struct {
	Registry registry.Registry
	Timer    *timing.Timer
	Feed     *feed.Broadcaster
	Log      *logrus.Logger

	UserToken  string
	AdminToken string
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// spectator surface, no token required
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	api.HandleFunc("/feed/subscribe", s.handleFeedSubscribe).Methods(http.MethodGet)
	api.HandleFunc("/feed/ws", s.handleFeedWS).Methods(http.MethodGet)

	api.HandleFunc("/agent", s.requireToken(s.handleCreateAgent)).Methods(http.MethodPost)
	api.HandleFunc("/agent", s.requireToken(s.handleListAgents)).Methods(http.MethodGet)
	api.HandleFunc("/agent/{id}", s.requireToken(s.handleReadAgent)).Methods(http.MethodGet)
	api.HandleFunc("/agent/{id}", s.requireToken(s.handleUpdateAgent)).Methods(http.MethodPatch)
	api.HandleFunc("/agent/{id}", s.requireToken(s.handleDeleteAgent)).Methods(http.MethodDelete)

	api.HandleFunc("/task", s.requireAdmin(s.handleCreateTask)).Methods(http.MethodPost)
	api.HandleFunc("/task/{taskID}", s.requireAdmin(s.handleDeleteTask)).Methods(http.MethodDelete)

	api.HandleFunc("/agent/{agentID}/task", s.requireToken(s.handleTasksForAgent)).Methods(http.MethodGet)
	api.HandleFunc("/agent/{agentID}/task/{taskID}", s.requireToken(s.handleOpenTask)).Methods(http.MethodGet)
	api.HandleFunc("/agent/{agentID}/task/{taskID}/check", s.requireToken(s.handleCheckTask)).Methods(http.MethodPost)

	return s.requestLogger(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Advent of AI meta hackathon backend",
		"time":    time.Now().UTC(),
	})
}

func decodeJSON(body io.Reader, dest any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeDomainError maps the failure taxonomy onto response categories.
// Server-caused failures never leak backend text; that goes to the log only.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrUnknownID):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrDuplicateID):
		writeError(w, http.StatusConflict, "duplicate id")
	case errors.Is(err, timing.ErrNotStarted):
		writeError(w, http.StatusBadRequest, "task not started")
	default:
		s.logger().WithError(err).Error("internal error")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) logger() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}
