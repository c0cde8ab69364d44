package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/database"
	"github.com/talentflow/ats-backend/models"
	"github.com/talentflow/ats-backend/shared"
)

// DB is the subset of *sql.DB the services depend on
type DB interface {
	database.Querier
	database.TxBeginner
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const applicationColumns = `application_id, job_id, candidato_id, estado, source, source_details,
	salario_expectativa, moneda, applied_at, updated_at`

const (
	lockApplicationQuery = `
		SELECT application_id, estado
		FROM applications
		WHERE job_id = $1 AND candidato_id = $2
		FOR UPDATE
	`

	insertApplicationQuery = `
		INSERT INTO applications (
			job_id, candidato_id, estado, source, source_details, salario_expectativa, moneda
		)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		ON CONFLICT (job_id, candidato_id) DO NOTHING
		RETURNING ` + applicationColumns

	updateApplicationQuery = `
		UPDATE applications
		SET estado = $2,
			source = COALESCE($3, source),
			source_details = COALESCE($4::jsonb, source_details),
			salario_expectativa = COALESCE($5, salario_expectativa),
			moneda = COALESCE($6, moneda),
			updated_at = NOW()
		WHERE application_id = $1
		RETURNING ` + applicationColumns

	insertStageHistoryQuery = `
		INSERT INTO application_stage_history (application_id, estado_anterior, estado_nuevo, comentario, cambiado_por)
		VALUES ($1, $2, $3, $4, $5)
	`

	insertNoteQuery = `
		INSERT INTO application_notes (application_id, autor_id, contenido, categoria)
		VALUES ($1, $2, $3, $4)
		RETURNING note_id, application_id, autor_id, contenido, categoria, created_at, updated_at
	`
)

// ApplicationService is the application ledger: it owns applications and
// their append-only stage history
type ApplicationService struct {
	DB             DB
	candidates     *CandidateService
	utility        *UtilityService
	auditLogger    *LedgerAuditLogger
	serviceMetrics *shared.ServiceMetrics
}

func NewApplicationService(db DB, candidates *CandidateService, utility *UtilityService) *ApplicationService {
	if utility == nil {
		utility = NewUtilityService()
	}
	if candidates == nil {
		candidates = NewCandidateService(utility)
	}
	return &ApplicationService{
		DB:             db,
		candidates:     candidates,
		utility:        utility,
		auditLogger:    NewLedgerAuditLogger(),
		serviceMetrics: shared.NewServiceMetrics("Application_Ledger"),
	}
}

// CreateOrUpdateApplication upserts the candidate and then creates or refreshes
// the application for (job, candidate) inside the caller's transaction.
//
// A stage history row is written when the application is created and
// whenever the status actually changes. When a concurrent transaction inserts
// the same pair first, the insert yields nothing and the winner's row is
// locked and updated instead.
func (s *ApplicationService) CreateOrUpdateApplication(ctx context.Context, tx database.Querier, params models.ApplicationUpsert) (*models.ApplicationUpsertResult, error) {
	startTime := time.Now()
	logger := logrus.WithFields(logrus.Fields{
		"component": "ApplicationService",
		"method":    "CreateOrUpdateApplication",
		"job_id":    params.JobID,
	})

	status := params.Status
	if status == "" {
		status = models.StatusNew
	}
	if !status.IsValid() {
		return nil, validationError("INVALID_STATUS", fmt.Sprintf("unknown status %q", status), "ApplicationService", "CreateOrUpdateApplication")
	}

	candidate, err := s.candidates.UpsertCandidate(ctx, tx, params.Candidate)
	if err != nil {
		s.serviceMetrics.RecordRequest(false, time.Since(startTime))
		return nil, err
	}

	currency := s.utility.NormalizeCurrency(params.Currency)
	details := nullableJSON(params.SourceDetails)

	existingID, previousStatus, err := s.lockExisting(ctx, tx, params.JobID, candidate.CandidateID)
	if err != nil {
		s.serviceMetrics.RecordRequest(false, time.Since(startTime))
		return nil, err
	}

	if existingID == nil {
		app, err := scanApplication(tx.QueryRowContext(ctx, insertApplicationQuery,
			params.JobID, candidate.CandidateID, status, params.Source, details, params.ExpectedSalary, currency))
		switch {
		case err == nil:
			if err := s.insertHistory(ctx, tx, app.ApplicationID, nil, status, params.HistoryComment, params.ChangedBy); err != nil {
				s.serviceMetrics.RecordRequest(false, time.Since(startTime))
				return nil, err
			}
			s.auditLogger.LogApplicationCreation(app, params.ChangedBy)
			s.serviceMetrics.RecordRequest(true, time.Since(startTime))
			s.serviceMetrics.RecordOutcome("created")
			return &models.ApplicationUpsertResult{Application: *app}, nil
		case errors.Is(err, sql.ErrNoRows):
			logger.WithField("candidato_id", candidate.CandidateID).Info("Concurrent insert detected, updating the existing application")
			s.serviceMetrics.RecordOutcome("insert_race")
			existingID, previousStatus, err = s.lockExisting(ctx, tx, params.JobID, candidate.CandidateID)
			if err != nil {
				s.serviceMetrics.RecordRequest(false, time.Since(startTime))
				return nil, err
			}
			if existingID == nil {
				s.serviceMetrics.RecordRequest(false, time.Since(startTime))
				return nil, shared.NewServiceError(shared.ErrorCategoryConflict, "DUPLICATE",
					"application changed concurrently", "ApplicationService", "CreateOrUpdateApplication", true, nil)
			}
		default:
			s.serviceMetrics.RecordRequest(false, time.Since(startTime))
			return nil, shared.ClassifyPostgresError(err, "ApplicationService", "CreateOrUpdateApplication")
		}
	}

	app, err := scanApplication(tx.QueryRowContext(ctx, updateApplicationQuery,
		*existingID, status, params.Source, details, params.ExpectedSalary, currency))
	if err != nil {
		s.serviceMetrics.RecordRequest(false, time.Since(startTime))
		return nil, shared.ClassifyPostgresError(err, "ApplicationService", "CreateOrUpdateApplication")
	}

	if *previousStatus != status {
		if err := s.insertHistory(ctx, tx, app.ApplicationID, previousStatus, status, params.HistoryComment, params.ChangedBy); err != nil {
			s.serviceMetrics.RecordRequest(false, time.Since(startTime))
			return nil, err
		}
		s.auditLogger.LogStageTransition(app.ApplicationID, previousStatus, status, params.ChangedBy)
	}

	s.serviceMetrics.RecordRequest(true, time.Since(startTime))
	s.serviceMetrics.RecordOutcome("updated")
	return &models.ApplicationUpsertResult{
		Application:    *app,
		WasExisting:    true,
		PreviousStatus: previousStatus,
	}, nil
}

// CreateApplication runs the ledger upsert for an authenticated user of companyID
func (s *ApplicationService) CreateApplication(ctx context.Context, companyID uuid.UUID, params models.ApplicationUpsert) (*models.ApplicationUpsertResult, error) {
	var result *models.ApplicationUpsertResult

	err := database.WithTransaction(ctx, s.DB, func(tx *sql.Tx) error {
		if err := s.ensureJobInCompany(ctx, tx, params.JobID, companyID); err != nil {
			return err
		}

		var err error
		result, err = s.CreateOrUpdateApplication(ctx, tx, params)
		return err
	})
	if err != nil {
		s.auditLogger.LogFailure("UPSERT", params.JobID.String(), params.ChangedBy, err)
		return nil, err
	}

	return result, nil
}

// UpdateStatus moves an application to status. The row is locked for the
// transaction and history is only written when the status differs.
func (s *ApplicationService) UpdateStatus(ctx context.Context, companyID, applicationID uuid.UUID, status models.ApplicationStatus, changedBy *uuid.UUID) (*models.Application, error) {
	if !status.IsValid() {
		return nil, validationError("INVALID_STATUS", fmt.Sprintf("unknown status %q", status), "ApplicationService", "UpdateStatus")
	}

	var updated *models.Application
	err := database.WithTransaction(ctx, s.DB, func(tx *sql.Tx) error {
		var previous models.ApplicationStatus
		var owner uuid.UUID
		err := tx.QueryRowContext(ctx, `
			SELECT a.estado, j.company_id
			FROM applications a
			JOIN jobs j ON j.job_id = a.job_id
			WHERE a.application_id = $1
			FOR UPDATE OF a
		`, applicationID).Scan(&previous, &owner)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrApplicationNotFound
		}
		if err != nil {
			return shared.ClassifyPostgresError(err, "ApplicationService", "UpdateStatus")
		}
		if owner != companyID {
			return ErrApplicationNotFound
		}

		updated, err = scanApplication(tx.QueryRowContext(ctx, `
			UPDATE applications
			SET estado = $2, updated_at = NOW()
			WHERE application_id = $1
			RETURNING `+applicationColumns, applicationID, status))
		if err != nil {
			return shared.ClassifyPostgresError(err, "ApplicationService", "UpdateStatus")
		}

		if previous != status {
			if err := s.insertHistory(ctx, tx, applicationID, &previous, status, nil, changedBy); err != nil {
				return err
			}
			s.auditLogger.LogStageTransition(applicationID, &previous, status, changedBy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// ListStageHistory returns the transitions of an application, newest first
func (s *ApplicationService) ListStageHistory(ctx context.Context, companyID, applicationID uuid.UUID) ([]models.StageHistoryEntry, error) {
	if err := s.ensureApplicationInCompany(ctx, applicationID, companyID); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT h.stage_history_id, h.application_id, h.estado_anterior, h.estado_nuevo, h.comentario,
			h.cambiado_por, u.nombre, u.email, h.changed_at
		FROM application_stage_history h
		LEFT JOIN users u ON u.user_id = h.cambiado_por
		WHERE h.application_id = $1
		ORDER BY h.changed_at DESC
	`, applicationID)
	if err != nil {
		return nil, shared.ClassifyPostgresError(err, "ApplicationService", "ListStageHistory")
	}
	defer rows.Close()

	entries := make([]models.StageHistoryEntry, 0)
	for rows.Next() {
		var entry models.StageHistoryEntry
		if err := rows.Scan(
			&entry.StageHistoryID,
			&entry.ApplicationID,
			&entry.PreviousStatus,
			&entry.NewStatus,
			&entry.Comment,
			&entry.ChangedBy,
			&entry.ChangedByName,
			&entry.ChangedByEmail,
			&entry.ChangedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stage history: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// ListByJob returns the applications of a job with candidate fields
func (s *ApplicationService) ListByJob(ctx context.Context, companyID, jobID uuid.UUID, status *models.ApplicationStatus) ([]models.ApplicationListItem, error) {
	if err := s.ensureJobInCompany(ctx, s.DB, jobID, companyID); err != nil {
		return nil, err
	}

	query := `
		SELECT a.application_id, a.job_id, a.candidato_id, a.estado, a.source, a.source_details,
			a.salario_expectativa, a.moneda, a.applied_at, a.updated_at,
			c.nombre_completo, c.email, c.telefono, c.resumen_url, c.linkedin_url, c.ciudad, c.pais, c.fuente,
			j.titulo
		FROM applications a
		JOIN candidatos c ON c.candidato_id = a.candidato_id
		JOIN jobs j ON j.job_id = a.job_id
		WHERE a.job_id = $1`
	args := []interface{}{jobID}
	if status != nil {
		args = append(args, *status)
		query += ` AND a.estado = $2`
	}
	query += ` ORDER BY a.applied_at DESC`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, shared.ClassifyPostgresError(err, "ApplicationService", "ListByJob")
	}
	defer rows.Close()

	items := make([]models.ApplicationListItem, 0)
	for rows.Next() {
		var item models.ApplicationListItem
		var details []byte
		if err := rows.Scan(
			&item.ApplicationID, &item.JobID, &item.CandidateID, &item.Status, &item.Source, &details,
			&item.ExpectedSalary, &item.Currency, &item.AppliedAt, &item.UpdatedAt,
			&item.FullName, &item.Email, &item.Phone, &item.ResumeURL, &item.LinkedInURL,
			&item.City, &item.Country, &item.CandidateSource,
			&item.JobTitle,
		); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		if len(details) > 0 {
			item.SourceDetails = details
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// ListNotes returns the notes of an application, newest first
func (s *ApplicationService) ListNotes(ctx context.Context, companyID, applicationID uuid.UUID) ([]models.ApplicationNote, error) {
	if err := s.ensureApplicationInCompany(ctx, applicationID, companyID); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT n.note_id, n.application_id, n.autor_id, u.nombre, u.email, n.contenido, n.categoria,
			n.created_at, n.updated_at
		FROM application_notes n
		LEFT JOIN users u ON u.user_id = n.autor_id
		WHERE n.application_id = $1
		ORDER BY n.created_at DESC
	`, applicationID)
	if err != nil {
		return nil, shared.ClassifyPostgresError(err, "ApplicationService", "ListNotes")
	}
	defer rows.Close()

	notes := make([]models.ApplicationNote, 0)
	for rows.Next() {
		var note models.ApplicationNote
		if err := rows.Scan(
			&note.NoteID, &note.ApplicationID, &note.AuthorID, &note.AuthorName, &note.AuthorEmail,
			&note.Content, &note.Category, &note.CreatedAt, &note.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}

	return notes, rows.Err()
}

// AddNote attaches a sanitized note written by author
func (s *ApplicationService) AddNote(ctx context.Context, companyID, applicationID uuid.UUID, author *uuid.UUID, content string, category *string) (*models.ApplicationNote, error) {
	sanitized := s.utility.SanitizeMessage(content)
	if sanitized == nil {
		return nil, validationError("EMPTY_NOTE", "note content is required", "ApplicationService", "AddNote")
	}

	if err := s.ensureApplicationInCompany(ctx, applicationID, companyID); err != nil {
		return nil, err
	}

	return s.insertNote(ctx, s.DB, applicationID, author, *sanitized, s.utility.NormalizeOptional(category))
}

func (s *ApplicationService) insertNote(ctx context.Context, q database.Querier, applicationID uuid.UUID, author *uuid.UUID, content string, category *string) (*models.ApplicationNote, error) {
	var note models.ApplicationNote
	err := q.QueryRowContext(ctx, insertNoteQuery, applicationID, author, content, category).Scan(
		&note.NoteID, &note.ApplicationID, &note.AuthorID, &note.Content, &note.Category, &note.CreatedAt, &note.UpdatedAt,
	)
	if err != nil {
		return nil, shared.ClassifyPostgresError(err, "ApplicationService", "insertNote")
	}
	return &note, nil
}

func (s *ApplicationService) lockExisting(ctx context.Context, q database.Querier, jobID, candidateID uuid.UUID) (*uuid.UUID, *models.ApplicationStatus, error) {
	var id uuid.UUID
	var status models.ApplicationStatus

	err := q.QueryRowContext(ctx, lockApplicationQuery, jobID, candidateID).Scan(&id, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, shared.ClassifyPostgresError(err, "ApplicationService", "lockExisting")
	}
	return &id, &status, nil
}

func (s *ApplicationService) insertHistory(ctx context.Context, q database.Querier, applicationID uuid.UUID, previous *models.ApplicationStatus, next models.ApplicationStatus, comment *string, changedBy *uuid.UUID) error {
	if _, err := q.ExecContext(ctx, insertStageHistoryQuery, applicationID, previous, next, comment, changedBy); err != nil {
		return shared.ClassifyPostgresError(err, "ApplicationService", "insertHistory")
	}
	return nil
}

func (s *ApplicationService) ensureJobInCompany(ctx context.Context, q database.Querier, jobID, companyID uuid.UUID) error {
	var owner uuid.UUID
	err := q.QueryRowContext(ctx, `SELECT company_id FROM jobs WHERE job_id = $1`, jobID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return shared.ClassifyPostgresError(err, "ApplicationService", "ensureJobInCompany")
	}
	if owner != companyID {
		return ErrForeignTenant
	}
	return nil
}

func (s *ApplicationService) ensureApplicationInCompany(ctx context.Context, applicationID, companyID uuid.UUID) error {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM applications a
			JOIN jobs j ON j.job_id = a.job_id
			WHERE a.application_id = $1 AND j.company_id = $2
		)
	`, applicationID, companyID).Scan(&exists)
	if err != nil {
		return shared.ClassifyPostgresError(err, "ApplicationService", "ensureApplicationInCompany")
	}
	if !exists {
		return ErrApplicationNotFound
	}
	return nil
}

// GetServiceMetrics returns the ledger metrics
func (s *ApplicationService) GetServiceMetrics() *shared.ServiceMetrics {
	return s.serviceMetrics
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var app models.Application
	var details []byte
	err := row.Scan(
		&app.ApplicationID,
		&app.JobID,
		&app.CandidateID,
		&app.Status,
		&app.Source,
		&details,
		&app.ExpectedSalary,
		&app.Currency,
		&app.AppliedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		app.SourceDetails = details
	}
	return &app, nil
}

// nullableJSON turns raw JSON into a text parameter, or NULL when empty.
// lib/pq sends []byte as bytea, which jsonb columns reject.
func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
