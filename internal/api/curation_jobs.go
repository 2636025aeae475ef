package api

import (
	"net/http"

	"github.com/Harvey-AU/catalog-backoffice/internal/jobs"
	"github.com/go-chi/chi/v5"
)

// JobResponse wraps a curation job
type JobResponse struct {
	Job *jobs.CurationJob `json:"job"`
}

// GetCurationJob handles GET /api/scraper/products/curation-jobs/{jobID}
func (h *Handler) GetCurationJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, r, JobResponse{Job: job}, http.StatusOK)
}

// CancelCurationJob handles DELETE /api/scraper/products/curation-jobs/{jobID}.
// Only queued jobs can be cancelled.
func (h *Handler) CancelCurationJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.Jobs.CancelJob(r.Context(), jobID); err != nil {
		WriteAppError(w, r, err)
		return
	}

	logger := loggerWithRequest(r)
	logger.Info().Str("job_id", jobID).Msg("Curation job cancelled via API")
	WriteNoContent(w, r)
}
