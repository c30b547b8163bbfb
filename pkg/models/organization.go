package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanAgency     = "agency"
	PlanEnterprise = "enterprise"
)

const (
	SubscriptionActive   = "active"
	SubscriptionInactive = "inactive"
)

// Organization is a customer account. Every other entity belongs to an
// organization. LastScanAt is the scheduling cursor for visibility scans.
type Organization struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	Name       string     `db:"name"         json:"name"`
	Domain     string     `db:"domain"       json:"domain"`
	LastScanAt *time.Time `db:"last_scan_at" json:"last_scan_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"updated_at"`
}

// Subscription is owned by billing and consumed read-only. The plan tier
// drives scan cadence and per-scan prompt caps.
type Subscription struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	PlanType       string    `db:"plan_type"       json:"plan_type"`
	Status         string    `db:"status"          json:"status"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"      json:"updated_at"`
}

// IsPaidPlan reports whether the tier unlocks weekly work (website analysis,
// reports, competitor analysis).
func IsPaidPlan(planType string) bool {
	switch planType {
	case PlanPro, PlanAgency, PlanEnterprise:
		return true
	}
	return false
}
