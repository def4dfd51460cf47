// Package api exposes the caller-facing operations over HTTP. It is a
// thin front end: search runs synchronously, ingestion is enqueued for
// the background workers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"semanticgallery/apperr"
	"semanticgallery/models"
	"semanticgallery/queue"
	"semanticgallery/search"
)

// Searcher is the synchronous retrieval surface the API depends on.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

// TaskQueue is the async ingestion surface the API depends on.
type TaskQueue interface {
	Enqueue(ctx context.Context, path string, recursive bool, maxDepth int) (string, error)
	GetTaskStatus(ctx context.Context, taskID string) (string, error)
	GetTaskResult(ctx context.Context, taskID string) (map[string]any, error)
}

// Server serves the search and ingestion endpoints.
type Server struct {
	searcher Searcher
	tasks    TaskQueue
	log      *logrus.Logger
}

// NewServer wires the API collaborators.
func NewServer(searcher Searcher, tasks TaskQueue, log *logrus.Logger) *Server {
	return &Server{searcher: searcher, tasks: tasks, log: log}
}

// Handler builds the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	r.HandleFunc("/ingest", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", s.handleTask).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

// ListenAndServe serves the API on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	s.log.WithField("addr", addr).Info("api server listening")
	return http.ListenAndServe(addr, s.Handler())
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []models.SearchResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit == 0 {
		req.Limit = search.DefaultLimit
	}

	results, err := s.searcher.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}
	if results == nil {
		// An explicit empty list distinguishes "no results" from an
		// error the caller failed to notice.
		results = []models.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: req.Query, Results: results})
}

func (s *Server) writeSearchError(w http.ResponseWriter, err error) {
	s.log.WithError(err).Warn("search request failed")
	if apperr.IsKind(err, apperr.KindValidation) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "search failed")
}

type ingestRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
	MaxDepth  *int   `json:"max_depth,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	maxDepth := -1
	if req.MaxDepth != nil {
		maxDepth = *req.MaxDepth
	}

	taskID, err := s.tasks.Enqueue(r.Context(), req.Path, req.Recursive, maxDepth)
	if err != nil {
		s.log.WithError(err).Error("enqueueing ingestion task")
		writeError(w, http.StatusServiceUnavailable, "could not enqueue ingestion task")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": taskID,
		"status":  queue.StatusQueued,
	})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]

	status, err := s.tasks.GetTaskStatus(r.Context(), taskID)
	if err != nil {
		s.log.WithError(err).Error("reading task status")
		writeError(w, http.StatusServiceUnavailable, "could not read task status")
		return
	}
	if status == "" {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown task: %s", taskID))
		return
	}

	resp := map[string]any{"task_id": taskID, "status": status}
	if result, err := s.tasks.GetTaskResult(r.Context(), taskID); err == nil && result != nil {
		resp["result"] = result
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
