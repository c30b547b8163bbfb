package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:api:%s", keyPrefix)
}

func CostSummaryKey(orgID uuid.UUID) string {
	return fmt.Sprintf("costs:summary:%s", orgID)
}

func SchedulerLeaseKey(name string) string {
	return fmt.Sprintf("scheduler:lease:%s", name)
}
