// Package handlers implements the status API endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/threeoaks/csvpipe/pkg/jobstore"
)

// Jobs serves job status lookups against the shared job store.
type Jobs struct {
	store  jobstore.Store
	logger *zap.Logger
}

// NewJobs wires the jobs handler.
func NewJobs(store jobstore.Store, logger *zap.Logger) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{store: store, logger: logger}
}

// Get handles GET /jobs/{jobID}.
func (h *Jobs) Get(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.MissingID(w, r)
		return
	}

	job, err := h.store.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			WriteJSON(w, http.StatusNotFound, map[string]string{
				"error": "Job not found",
				"jobId": jobID,
			})
			return
		}
		h.logger.Error("Failed to fetch job", zap.String("jobId", jobID), zap.Error(err))
		WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Could not fetch job status",
		})
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// MissingID handles GET /jobs and GET /jobs/ where no id was supplied.
func (h *Jobs) MissingID(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing job ID"})
}

// WriteJSON writes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
