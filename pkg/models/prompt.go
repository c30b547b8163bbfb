package models

import (
	"time"

	"github.com/google/uuid"
)

// Prompt is a question an organization tracks across AI assistants
// ("best CRM for startups", ...).
type Prompt struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	Text           string    `db:"prompt_text"     json:"prompt_text"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}

// Competitor is a rival brand tracked for visibility gaps.
type Competitor struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name"            json:"name"`
	Status         string    `db:"status"          json:"status"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}

// MonitoredPage is a URL watched for content freshness.
type MonitoredPage struct {
	ID                  uuid.UUID  `db:"id"                    json:"id"`
	OrganizationID      uuid.UUID  `db:"organization_id"       json:"organization_id"`
	URL                 string     `db:"url"                   json:"url"`
	Status              string     `db:"status"                json:"status"`
	ContentHash         *string    `db:"content_hash"          json:"content_hash,omitempty"`
	WordCount           int        `db:"word_count"            json:"word_count"`
	FreshnessScore      int        `db:"freshness_score"       json:"freshness_score"`
	CheckFrequencyHours int        `db:"check_frequency_hours" json:"check_frequency_hours"`
	ErrorMessage        *string    `db:"error_message"         json:"error_message,omitempty"`
	LastCrawledAt       *time.Time `db:"last_crawled_at"       json:"last_crawled_at,omitempty"`
	LastModifiedAt      *time.Time `db:"last_modified_at"      json:"last_modified_at,omitempty"`
	NextCheckAt         *time.Time `db:"next_check_at"         json:"next_check_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at"            json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"            json:"updated_at"`
}
