package store

import (
	"fmt"

	"github.com/forgestack/mindvault/pkg/models"
)

func JobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func UserJobsKey(userID string) string {
	return fmt.Sprintf("user:%s:jobs", userID)
}

func QueueKey(jobType models.JobType) string {
	return fmt.Sprintf("queue:%s", jobType)
}

// DelayedQueueKey holds retry candidates sorted by next-eligible time.
func DelayedQueueKey(jobType models.JobType) string {
	return fmt.Sprintf("queue:%s:delayed", jobType)
}

func RateLimitKey(userID string) string {
	return fmt.Sprintf("ratelimit:%s", userID)
}
