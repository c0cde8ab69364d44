package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/database"
	"github.com/talentflow/ats-backend/jobs"
	"github.com/talentflow/ats-backend/models"
	"github.com/talentflow/ats-backend/shared"
)

const insertAttemptQuery = `
	INSERT INTO public_applications_log
		(job_id, candidate_email, status, error_message, ip, user_agent, recaptcha_score, source, source_details)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
`

// TaskSubmitter accepts background work without blocking. *jobs.Dispatcher implements it.
type TaskSubmitter interface {
	Submit(name string, task jobs.Task) bool
}

// AttemptLogger appends public submission outcomes to public_applications_log.
// Writes happen off the request path and failures are only warned about.
type AttemptLogger struct {
	db             database.Querier
	dispatcher     TaskSubmitter
	enabled        bool
	writeTimeout   time.Duration
	serviceMetrics *shared.ServiceMetrics
}

// NewAttemptLogger creates a logger. With a nil dispatcher each write runs on its own goroutine.
func NewAttemptLogger(db database.Querier, dispatcher TaskSubmitter, enabled bool) *AttemptLogger {
	return &AttemptLogger{
		db:             db,
		dispatcher:     dispatcher,
		enabled:        enabled,
		writeTimeout:   5 * time.Second,
		serviceMetrics: shared.NewServiceMetrics("Attempt_Logger"),
	}
}

// LogAttempt schedules the write and returns immediately
func (l *AttemptLogger) LogAttempt(attempt models.PublicAttempt) {
	if !l.enabled {
		return
	}

	task := func(ctx context.Context) error {
		l.Write(ctx, attempt)
		return nil
	}

	if l.dispatcher == nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
			defer cancel()
			_ = task(ctx)
		}()
		return
	}

	if !l.dispatcher.Submit("public_attempt_log", task) {
		l.serviceMetrics.RecordOutcome("dropped")
	}
}

// Write inserts the attempt synchronously. Errors are logged, never returned.
func (l *AttemptLogger) Write(ctx context.Context, attempt models.PublicAttempt) bool {
	startTime := time.Now()

	_, err := l.db.ExecContext(ctx, insertAttemptQuery,
		attempt.JobID,
		attempt.CandidateEmail,
		attempt.Status,
		attempt.ErrorMessage,
		attempt.IP,
		attempt.UserAgent,
		attempt.CaptchaScore,
		attempt.Source,
		nullableJSON(attempt.SourceDetails),
	)
	l.serviceMetrics.RecordRequest(err == nil, time.Since(startTime))
	l.serviceMetrics.RecordOutcome(string(attempt.Status))

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "AttemptLogger",
			"status":    attempt.Status,
			"job_id":    attempt.JobID,
		}).WithError(err).Warn("Failed to record public application attempt")
		return false
	}
	return true
}

// Enabled reports whether attempts are recorded
func (l *AttemptLogger) Enabled() bool {
	return l.enabled
}

// GetServiceMetrics returns the logger metrics
func (l *AttemptLogger) GetServiceMetrics() *shared.ServiceMetrics {
	return l.serviceMetrics
}
