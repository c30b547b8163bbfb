package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/columbushq/columbus/internal/api/middleware"
	"github.com/columbushq/columbus/internal/api/response"
	"github.com/columbushq/columbus/internal/store"
	"github.com/columbushq/columbus/pkg/models"
)

// NewCreateJobHandler returns the handler for POST /api/v1/jobs. The job is
// created queued; the dispatcher picks it up on its next poll.
func NewCreateJobHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrganizationID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}

		var req struct {
			JobType  string             `json:"job_type"`
			Metadata models.JobMetadata `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if !models.ValidJobTypes[req.JobType] {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Unknown job_type", map[string]string{"job_type": req.JobType})
			return
		}
		if req.Metadata == nil {
			req.Metadata = models.JobMetadata{}
		}

		now := time.Now().UTC()
		job := &models.Job{
			ID:             uuid.New(),
			OrganizationID: orgID,
			Type:           req.JobType,
			Status:         models.JobStatusQueued,
			Metadata:       req.Metadata,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := st.CreateJob(r.Context(), job); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create job", nil)
			return
		}

		response.Created(w, job)
	}
}

// NewListJobsHandler returns the handler for GET /api/v1/jobs.
func NewListJobsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrganizationID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}

		filter := store.JobFilter{OrganizationID: orgID}

		if status := r.URL.Query().Get("status"); status != "" {
			switch status {
			case models.JobStatusQueued, models.JobStatusProcessing,
				models.JobStatusCompleted, models.JobStatusFailed:
				filter.Status = status
			default:
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"Unknown status", map[string]string{"status": status})
				return
			}
		}
		if limit := r.URL.Query().Get("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil || n <= 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
				return
			}
			filter.Limit = n
		}

		jobs, err := st.ListJobs(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list jobs", nil)
			return
		}
		if jobs == nil {
			jobs = []*models.Job{}
		}

		response.Collection(w, jobs, response.PaginationMeta{
			Page:  1,
			Limit: filter.Limit,
			Total: len(jobs),
		})
	}
}

// NewGetJobHandler returns the handler for GET /api/v1/jobs/{jobID}. Jobs
// belonging to another organization read as not found.
func NewGetJobHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrganizationID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
			return
		}

		job, err := st.GetJob(r.Context(), jobID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
			return
		}
		if job.OrganizationID != orgID {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}

		response.JSON(w, job)
	}
}
