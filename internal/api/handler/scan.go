package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	mw "github.com/columbushq/columbus/internal/api/middleware"
	"github.com/columbushq/columbus/internal/api/response"
	"github.com/columbushq/columbus/internal/store"
	"github.com/columbushq/columbus/pkg/models"
)

// Plan prompt caps: how many prompts one scan may cover.
var scanPromptLimits = map[string]int{
	models.PlanFree:       5,
	models.PlanPro:        20,
	models.PlanAgency:     50,
	models.PlanEnterprise: 100,
}

const scanCompetitorLimit = 10

// NewScanNowHandler returns the handler for POST /api/v1/scans: an
// on-demand visibility scan outside the regular cadence. It creates the
// same queued job row the scheduler would, capped by the plan's prompt
// limit, without touching last_scan_at.
func NewScanNowHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrganizationID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}

		org, err := st.GetOrganization(r.Context(), orgID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Organization not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load organization", nil)
			return
		}

		sub, err := st.GetSubscription(r.Context(), orgID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusForbidden, "NO_SUBSCRIPTION", "Organization has no subscription", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load subscription", nil)
			return
		}
		if sub.Status != models.SubscriptionActive {
			response.Error(w, http.StatusForbidden, "SUBSCRIPTION_INACTIVE", "Subscription is not active", nil)
			return
		}

		limit, ok := scanPromptLimits[sub.PlanType]
		if !ok {
			limit = scanPromptLimits[models.PlanFree]
		}

		promptIDs, err := st.ListPromptIDs(r.Context(), orgID, limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load prompts", nil)
			return
		}
		if len(promptIDs) == 0 {
			response.Error(w, http.StatusUnprocessableEntity, "NO_PROMPTS", "No prompts configured for this organization", nil)
			return
		}

		competitors, err := st.ListActiveCompetitors(r.Context(), orgID, scanCompetitorLimit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load competitors", nil)
			return
		}
		names := make([]string, 0, len(competitors))
		for _, c := range competitors {
			names = append(names, c.Name)
		}

		now := time.Now().UTC()
		job := &models.Job{
			ID:             uuid.New(),
			OrganizationID: orgID,
			Type:           models.JobTypeVisibilityScan,
			Status:         models.JobStatusQueued,
			Metadata: models.JobMetadata{
				"brandName":   org.Name,
				"domain":      org.Domain,
				"promptIds":   promptIDs,
				"competitors": names,
				"isScheduled": false,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := st.CreateJob(r.Context(), job); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create scan job", nil)
			return
		}

		response.Accepted(w, job)
	}
}
