package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"deckreview-pipeline/internal/domain"
	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/adapter"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type enqueueRequest struct {
	DocumentID string `json:"document_id"`
	FilePath   string `json:"file_path"`
	CompanyID  string `json:"company_id"`
	Priority   int    `json:"priority"`
}

func (s *Server) enqueueHandler(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	task, err := s.queueUC.Enqueue(r.Context(), req.DocumentID, req.FilePath, req.CompanyID, req.Priority)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrAlreadyExists):
			http.Error(w, "document already queued", http.StatusConflict)
		default:
			s.log.Error().Err(err).Msg("enqueue failed")
			http.Error(w, "Failed to enqueue task", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	view, err := s.queueUC.Status(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Unknown document", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("document_id", documentID).Msg("status read failed")
		http.Error(w, "Failed to read status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	events, err := s.queueUC.History(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Unknown document", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("document_id", documentID).Msg("history read failed")
		http.Error(w, "Failed to read progress history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// callbackHandler receives asynchronous phase results from the GPU worker.
func (s *Server) callbackHandler(w http.ResponseWriter, r *http.Request) {
	var res adapter.PhaseResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.pipeline.HandleCallback(r.Context(), res); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, "Invalid callback payload", http.StatusBadRequest)
		case errors.Is(err, domain.ErrNoCallbackWaiter):
			// The phase was disowned (timeout, crash); the result is dropped.
			http.Error(w, "No dispatcher waiting for this phase", http.StatusNotFound)
		default:
			s.log.Error().Err(err).Msg("callback handling failed")
			http.Error(w, "Failed to handle callback", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type heartbeatRequest struct {
	ServerType         string `json:"server_type"`
	CurrentLoad        int    `json:"current_load"`
	MaxConcurrentTasks int    `json:"max_concurrent_tasks"`
}

func (s *Server) heartbeatHandler(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "serverID")
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	srv := &model.WorkerServer{
		ServerID:           serverID,
		ServerType:         req.ServerType,
		CurrentLoad:        req.CurrentLoad,
		MaxConcurrentTasks: req.MaxConcurrentTasks,
	}
	if err := s.servers.Heartbeat(r.Context(), nil, srv); err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error().Err(err).Str("server_id", serverID).Msg("heartbeat failed")
		http.Error(w, "Failed to record heartbeat", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

// --- admin handlers ---

func (s *Server) adminListTasksHandler(w http.ResponseWriter, r *http.Request) {
	status := model.TaskStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.TaskStatusProcessing
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	tasks, err := s.queueUC.ListByStatus(r.Context(), status, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("task list failed")
		http.Error(w, "Failed to list tasks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

type requeueRequest struct {
	Priority int `json:"priority"`
}

func (s *Server) adminRequeueHandler(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	req := requeueRequest{Priority: 10}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	if err := s.queueUC.ForceRequeue(r.Context(), documentID, req.Priority); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Unknown document", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("document_id", documentID).Msg("requeue failed")
		http.Error(w, "Failed to requeue document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"document_id": documentID, "status": "pending"})
}

func (s *Server) adminResetStuckHandler(w http.ResponseWriter, r *http.Request) {
	olderThan := 30 * time.Minute
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			http.Error(w, "Invalid older_than duration", http.StatusBadRequest)
			return
		}
		olderThan = d
	}
	n, err := s.queueUC.ResetStuck(r.Context(), olderThan)
	if err != nil {
		s.log.Error().Err(err).Msg("stuck reset failed")
		http.Error(w, "Failed to reset stuck tasks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reset": n})
}

func (s *Server) adminRetryFailedHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.queueUC.RetryFailed(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("retry-failed failed")
		http.Error(w, "Failed to retry failed tasks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
}
