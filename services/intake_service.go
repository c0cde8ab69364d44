package services

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/database"
	"github.com/talentflow/ats-backend/models"
	"github.com/talentflow/ats-backend/shared"
)

const (
	PortalSource = "portal_publico"

	historyCommentWithMessage = "Postulación enviada desde portal público"
	historyCommentDefault     = "Portal público"
)

const (
	lockIntakeJobQuery = `
		SELECT j.job_id, j.company_id, j.estado, c.is_active, j.titulo, c.nombre
		FROM jobs j
		JOIN companies c ON c.company_id = j.company_id
		WHERE j.job_id = $1
		FOR UPDATE OF j
	`

	notificationRecipientsQuery = `
		SELECT email
		FROM users
		WHERE company_id = $1
			AND activo = TRUE
			AND invitacion_aceptada = TRUE
			AND rol IN ('admin', 'hr_admin')
	`
)

var ErrInvalidJobID = shared.NewServiceError(shared.ErrorCategoryValidation, "INVALID_ID",
	"invalid job id", "PublicIntakeService", "Submit", false, nil)

// PublicIntakeService runs a public portal submission through abuse control,
// the application ledger and the attempt log
type PublicIntakeService struct {
	db             DB
	abuse          *AbuseControl
	ledger         *ApplicationService
	attempts       *AttemptLogger
	notifier       Notifier
	dispatcher     TaskSubmitter
	utility        *UtilityService
	config         shared.IntakeConfig
	serviceMetrics *shared.ServiceMetrics
}

// PublicIntakeDeps groups the collaborators of PublicIntakeService
type PublicIntakeDeps struct {
	DB         DB
	Abuse      *AbuseControl
	Ledger     *ApplicationService
	Attempts   *AttemptLogger
	Notifier   Notifier
	Dispatcher TaskSubmitter
	Utility    *UtilityService
}

func NewPublicIntakeService(deps PublicIntakeDeps, cfg shared.IntakeConfig) *PublicIntakeService {
	if deps.Utility == nil {
		deps.Utility = NewUtilityService()
	}
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{}
	}
	return &PublicIntakeService{
		db:             deps.DB,
		abuse:          deps.Abuse,
		ledger:         deps.Ledger,
		attempts:       deps.Attempts,
		notifier:       deps.Notifier,
		dispatcher:     deps.Dispatcher,
		utility:        deps.Utility,
		config:         cfg,
		serviceMetrics: shared.NewServiceMetrics("Public_Intake"),
	}
}

// submission carries what every attempt log entry of one request shares
type submission struct {
	jobID        *uuid.UUID
	email        string
	client       models.ClientInfo
	details      models.SourceDetails
	captchaScore *float64
}

// Submit processes one public application. Exactly one attempt entry is
// logged for every call once the feature is enabled.
func (s *PublicIntakeService) Submit(ctx context.Context, rawJobID string, input models.PublicApplicationInput, client models.ClientInfo) (*models.IntakeResult, error) {
	if !s.config.Enabled {
		return nil, ErrIntakeDisabled
	}

	startTime := time.Now()
	if client.IP == "" {
		client.IP = unknownIP
	}

	sub := &submission{
		email:  input.Email,
		client: client,
	}

	jobID, err := uuid.Parse(rawJobID)
	if err != nil {
		sub.details = s.sourceDetails(input, client)
		return nil, s.reject(sub, models.AttemptInvalid, "invalid_job_id", ErrInvalidJobID, startTime)
	}
	sub.jobID = &jobID

	if err := ValidatePublicApplication(&input); err != nil {
		sub.email = input.Email
		sub.details = s.sourceDetails(input, client)
		return nil, s.reject(sub, models.AttemptInvalid, "invalid_payload", err, startTime)
	}
	sub.email = input.Email
	sub.details = s.sourceDetails(input, client)

	if err := s.abuse.CheckRateLimit(ctx, client.IP); err != nil {
		if errors.Is(err, shared.ErrRateLimited) {
			return nil, s.reject(sub, models.AttemptRateLimited, "", err, startTime)
		}
		return nil, s.reject(sub, models.AttemptError, err.Error(), err, startTime)
	}

	check, err := s.abuse.VerifyCaptcha(ctx, input.CaptchaToken, client.IP)
	sub.captchaScore = check.Score
	if err != nil {
		if IsCaptchaRejection(err) {
			return nil, s.reject(sub, models.AttemptCaptchaFailed, check.Reason, err, startTime)
		}
		return nil, s.reject(sub, models.AttemptError, check.Reason, err, startTime)
	}

	var (
		result     *models.ApplicationUpsertResult
		job        models.IntakeJob
		recipients []string
		message    *string
	)
	if input.Message != nil {
		message = s.utility.SanitizeMessage(*input.Message)
	}

	err = database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		job, err = s.lockJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if !job.AcceptsApplications() {
			return ErrJobClosed
		}

		comment := historyCommentDefault
		if message != nil {
			comment = historyCommentWithMessage
		}
		source := PortalSource

		result, err = s.ledger.CreateOrUpdateApplication(ctx, tx, models.ApplicationUpsert{
			JobID: jobID,
			Candidate: models.CandidateInput{
				FullName:    input.FullName,
				Email:       input.Email,
				Phone:       input.Phone,
				ResumeURL:   input.ResumeURL,
				LinkedInURL: input.LinkedInURL,
				City:        input.City,
				Country:     input.Country,
				Source:      &source,
			},
			Status:         models.StatusNew,
			Source:         &source,
			SourceDetails:  sub.details.JSON(),
			ExpectedSalary: input.ExpectedSalary,
			Currency:       input.Currency,
			HistoryComment: &comment,
		})
		if err != nil {
			return err
		}

		recipients, err = s.loadRecipients(ctx, tx, job.CompanyID)
		if err != nil {
			return err
		}

		if message != nil {
			category := PortalSource
			if _, err := s.ledger.insertNote(ctx, tx, result.Application.ApplicationID, nil, *message, &category); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrJobNotFound):
			return nil, s.reject(sub, models.AttemptInvalid, "job_not_found", err, startTime)
		case errors.Is(err, ErrJobClosed):
			return nil, s.reject(sub, models.AttemptJobClosed, "", err, startTime)
		case shared.HTTPStatus(err) == http.StatusBadRequest:
			return nil, s.reject(sub, models.AttemptInvalid, err.Error(), err, startTime)
		default:
			return nil, s.reject(sub, models.AttemptError, err.Error(), err, startTime)
		}
	}

	if !result.WasExisting && len(recipients) > 0 {
		s.notify(PublicApplicationNotice{
			To:             recipients,
			JobTitle:       job.Title,
			CompanyName:    job.CompanyName,
			CandidateName:  input.FullName,
			CandidateEmail: input.Email,
			CandidatePhone: input.Phone,
			Message:        message,
			JobURL:         s.config.PortalURL + "/portal/vacantes",
		})
	}

	status := models.AttemptReceived
	if result.WasExisting {
		status = models.AttemptDuplicate
	}
	s.logAttempt(sub, status, "")
	s.serviceMetrics.RecordRequest(true, time.Since(startTime))
	s.serviceMetrics.RecordOutcome(string(status))

	logrus.WithFields(logrus.Fields{
		"component":      "PublicIntakeService",
		"job_id":         jobID,
		"application_id": result.Application.ApplicationID,
		"status":         status,
		"recipients":     len(recipients),
	}).Info("Public application processed")

	return &models.IntakeResult{Status: status, Application: result.Application}, nil
}

// GetServiceMetrics returns intake metrics
func (s *PublicIntakeService) GetServiceMetrics() *shared.ServiceMetrics {
	return s.serviceMetrics
}

func (s *PublicIntakeService) reject(sub *submission, status models.AttemptStatus, reason string, err error, startTime time.Time) error {
	s.logAttempt(sub, status, reason)
	s.serviceMetrics.RecordRequest(status != models.AttemptError, time.Since(startTime))
	s.serviceMetrics.RecordOutcome(string(status))

	logger := logrus.WithFields(logrus.Fields{
		"component": "PublicIntakeService",
		"job_id":    sub.jobID,
		"status":    status,
		"reason":    reason,
	})
	if status == models.AttemptError {
		logger.WithError(err).Error("Public application failed")
	} else {
		logger.Info("Public application rejected")
	}
	return err
}

func (s *PublicIntakeService) logAttempt(sub *submission, status models.AttemptStatus, reason string) {
	if s.attempts == nil {
		return
	}

	source := PortalSource
	attempt := models.PublicAttempt{
		JobID:          sub.jobID,
		CandidateEmail: sub.email,
		Status:         status,
		IP:             &sub.client.IP,
		UserAgent:      sub.client.UserAgent,
		CaptchaScore:   sub.captchaScore,
		Source:         &source,
		SourceDetails:  sub.details.JSON(),
	}
	if reason != "" {
		attempt.ErrorMessage = &reason
	}
	s.attempts.LogAttempt(attempt)
}

func (s *PublicIntakeService) notify(notice PublicApplicationNotice) {
	task := func(ctx context.Context) error {
		_, err := s.notifier.NotifyPublicApplication(ctx, notice)
		return err
	}

	if s.dispatcher == nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := task(ctx); err != nil {
				logrus.WithField("component", "PublicIntakeService").WithError(err).Warn("Failed to send public application notification")
			}
		}()
		return
	}

	s.dispatcher.Submit("public_application_notification", task)
}

func (s *PublicIntakeService) sourceDetails(input models.PublicApplicationInput, client models.ClientInfo) models.SourceDetails {
	ip := client.IP
	details := models.SourceDetails{
		Channel:   PortalSource,
		IP:        &ip,
		UserAgent: client.UserAgent,
	}
	if input.Channel != nil && *input.Channel != "" {
		details.Channel = *input.Channel
	}
	if input.Campaign != nil {
		details.Campaign = *input.Campaign
	}
	return details
}

func (s *PublicIntakeService) lockJob(ctx context.Context, q database.Querier, jobID uuid.UUID) (models.IntakeJob, error) {
	var job models.IntakeJob
	err := q.QueryRowContext(ctx, lockIntakeJobQuery, jobID).Scan(
		&job.JobID,
		&job.CompanyID,
		&job.Status,
		&job.CompanyActive,
		&job.Title,
		&job.CompanyName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return job, ErrJobNotFound
	}
	if err != nil {
		return job, shared.ClassifyPostgresError(err, "PublicIntakeService", "lockJob")
	}
	return job, nil
}

func (s *PublicIntakeService) loadRecipients(ctx context.Context, q database.Querier, companyID uuid.UUID) ([]string, error) {
	rows, err := q.QueryContext(ctx, notificationRecipientsQuery, companyID)
	if err != nil {
		return nil, shared.ClassifyPostgresError(err, "PublicIntakeService", "loadRecipients")
	}
	defer rows.Close()

	var recipients []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		if email != "" {
			recipients = append(recipients, email)
		}
	}
	return recipients, rows.Err()
}
