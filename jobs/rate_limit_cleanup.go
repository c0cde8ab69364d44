package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/shared"
)

// RateLimitCleanupJob drops expired windows from the in-process rate limit store
type RateLimitCleanupJob struct {
	Store *shared.MemoryWindowStore
}

func NewRateLimitCleanupJob(store *shared.MemoryWindowStore) *RateLimitCleanupJob {
	return &RateLimitCleanupJob{Store: store}
}

func (j *RateLimitCleanupJob) Run() int {
	removed := j.Store.Sweep()
	logrus.WithFields(logrus.Fields{
		"component": "RateLimitCleanupJob",
		"removed":   removed,
		"remaining": j.Store.Len(),
	}).Debug("Rate limit cleanup completed")
	return removed
}

// Start runs the job every interval until ctx is cancelled
func (j *RateLimitCleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Stopping Rate Limit Cleanup Job")
			return
		case <-ticker.C:
			j.Run()
		}
	}
}
