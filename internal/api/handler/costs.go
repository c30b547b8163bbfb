package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	mw "github.com/columbushq/columbus/internal/api/middleware"
	"github.com/columbushq/columbus/internal/api/response"
	"github.com/columbushq/columbus/internal/cache"
	"github.com/columbushq/columbus/internal/ratelimit"
)

// costCacheTTL keeps cost summaries short-lived: views on a dashboard, not
// a billing ledger.
const costCacheTTL = 60 * time.Second

// CostReporter reads the month's cost ledger for an organization.
type CostReporter interface {
	CostSummary(ctx context.Context, orgID uuid.UUID) (*ratelimit.Summary, error)
}

// NewCostsHandler returns the handler for GET /api/v1/costs: this month's
// per-assistant request counts and spend.
func NewCostsHandler(reporter CostReporter, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrganizationID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}

		key := cache.CostSummaryKey(orgID)
		if cached, hit, err := c.Get(r.Context(), key); err == nil && hit {
			var summary ratelimit.Summary
			if json.Unmarshal(cached, &summary) == nil {
				response.JSON(w, summary)
				return
			}
		}

		summary, err := reporter.CostSummary(r.Context(), orgID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load cost summary", nil)
			return
		}

		if data, err := json.Marshal(summary); err == nil {
			if err := c.Set(r.Context(), key, data, costCacheTTL); err != nil {
				slog.Warn("cache cost summary", "organization_id", orgID, "error", err)
			}
		}

		response.JSON(w, summary)
	}
}
