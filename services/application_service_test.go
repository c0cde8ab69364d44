package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentflow/ats-backend/models"
	"github.com/talentflow/ats-backend/shared"
)

func newLedgerUpsert(jobID uuid.UUID, status models.ApplicationStatus) models.ApplicationUpsert {
	source := PortalSource
	return models.ApplicationUpsert{
		JobID: jobID,
		Candidate: models.CandidateInput{
			FullName: "Ana Pérez",
			Email:    "  Ana@Example.com ",
			Source:   &source,
		},
		Status:         status,
		Source:         &source,
		SourceDetails:  []byte(`{"channel":"portal_publico"}`),
		HistoryComment: strPtr(historyCommentDefault),
	}
}

func expectCandidateUpsert(mock sqlmock.Sqlmock, candidateID uuid.UUID) {
	mock.ExpectQuery(`INSERT INTO candidatos`).
		WithArgs("Ana Pérez", "ana@example.com", nil, nil, nil, nil, nil, PortalSource).
		WillReturnRows(candidateRows(candidateID, "Ana Pérez", "ana@example.com"))
}

func TestCreateOrUpdateApplication_CreatesWithHistory(t *testing.T) {
	db, mock := setupMockDB(t)
	service := NewApplicationService(db, nil, nil)

	jobID, candidateID, applicationID := uuid.New(), uuid.New(), uuid.New()
	expectCandidateUpsert(mock, candidateID)
	mock.ExpectQuery(`SELECT application_id, estado FROM applications`).
		WithArgs(jobID, candidateID).
		WillReturnRows(emptyRows("application_id", "estado"))
	mock.ExpectQuery(`INSERT INTO applications`).
		WithArgs(jobID, candidateID, models.StatusNew, PortalSource, `{"channel":"portal_publico"}`, nil, nil).
		WillReturnRows(applicationRows(applicationID, jobID, candidateID, models.StatusNew))
	mock.ExpectExec(`INSERT INTO application_stage_history`).
		WithArgs(applicationID, nil, models.StatusNew, historyCommentDefault, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := service.CreateOrUpdateApplication(context.Background(), db, newLedgerUpsert(jobID, ""))

	require.NoError(t, err)
	assert.False(t, result.WasExisting)
	assert.Nil(t, result.PreviousStatus)
	assert.Equal(t, applicationID, result.Application.ApplicationID)
	assert.Equal(t, models.StatusNew, result.Application.Status)
	assert.JSONEq(t, `{"channel":"portal_publico"}`, string(result.Application.SourceDetails))
	assert.Equal(t, int64(1), service.GetServiceMetrics().GetSnapshot().Outcomes["created"])
	require.NoError(t, mock.ExpectationsWereMet())
}

// stageChanges counts the STAGE_CHANGE audit entries captured by hook
func stageChanges(hook *logtest.Hook) int {
	n := 0
	for _, entry := range hook.AllEntries() {
		if entry.Data["operation"] == "STAGE_CHANGE" {
			n++
		}
	}
	return n
}

func TestCreateOrUpdateApplication_SameStatusWritesNoHistory(t *testing.T) {
	db, mock := setupMockDB(t)
	service := NewApplicationService(db, nil, nil)
	hook := logtest.NewGlobal()
	defer hook.Reset()

	jobID, candidateID, applicationID := uuid.New(), uuid.New(), uuid.New()
	expectCandidateUpsert(mock, candidateID)
	mock.ExpectQuery(`SELECT application_id, estado FROM applications`).
		WithArgs(jobID, candidateID).
		WillReturnRows(lockRows(applicationID, models.StatusNew))
	mock.ExpectQuery(`UPDATE applications`).
		WithArgs(applicationID, models.StatusNew, PortalSource, `{"channel":"portal_publico"}`, nil, nil).
		WillReturnRows(applicationRows(applicationID, jobID, candidateID, models.StatusNew))

	result, err := service.CreateOrUpdateApplication(context.Background(), db, newLedgerUpsert(jobID, models.StatusNew))

	require.NoError(t, err)
	assert.True(t, result.WasExisting)
	require.NotNil(t, result.PreviousStatus)
	assert.Equal(t, models.StatusNew, *result.PreviousStatus)
	assert.Zero(t, stageChanges(hook))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrUpdateApplication_StatusChangeWritesHistory(t *testing.T) {
	db, mock := setupMockDB(t)
	service := NewApplicationService(db, nil, nil)
	hook := logtest.NewGlobal()
	defer hook.Reset()

	jobID, candidateID, applicationID := uuid.New(), uuid.New(), uuid.New()
	changedBy := uuid.New()
	expectCandidateUpsert(mock, candidateID)
	mock.ExpectQuery(`SELECT application_id, estado FROM applications`).
		WillReturnRows(lockRows(applicationID, models.StatusNew))
	mock.ExpectQuery(`UPDATE applications`).
		WillReturnRows(applicationRows(applicationID, jobID, candidateID, models.StatusInterview))
	mock.ExpectExec(`INSERT INTO application_stage_history`).
		WithArgs(applicationID, models.StatusNew, models.StatusInterview, historyCommentDefault, changedBy).
		WillReturnResult(sqlmock.NewResult(1, 1))

	params := newLedgerUpsert(jobID, models.StatusInterview)
	params.ChangedBy = &changedBy
	result, err := service.CreateOrUpdateApplication(context.Background(), db, params)

	require.NoError(t, err)
	assert.True(t, result.WasExisting)
	assert.Equal(t, models.StatusInterview, result.Application.Status)
	assert.Equal(t, 1, stageChanges(hook))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrUpdateApplication_ConcurrentInsertFallsBackToUpdate(t *testing.T) {
	db, mock := setupMockDB(t)
	service := NewApplicationService(db, nil, nil)

	jobID, candidateID, applicationID := uuid.New(), uuid.New(), uuid.New()
	expectCandidateUpsert(mock, candidateID)
	mock.ExpectQuery(`SELECT application_id, estado FROM applications`).
		WillReturnRows(emptyRows("application_id", "estado"))
	mock.ExpectQuery(`INSERT INTO applications`).
		WillReturnRows(emptyRows(applicationRowColumns...))
	mock.ExpectQuery(`SELECT application_id, estado FROM applications`).
		WithArgs(jobID, candidateID).
		WillReturnRows(lockRows(applicationID, models.StatusNew))
	mock.ExpectQuery(`UPDATE applications`).
		WillReturnRows(applicationRows(applicationID, jobID, candidateID, models.StatusNew))

	result, err := service.CreateOrUpdateApplication(context.Background(), db, newLedgerUpsert(jobID, models.StatusNew))

	require.NoError(t, err)
	assert.True(t, result.WasExisting)
	outcomes := service.GetServiceMetrics().GetSnapshot().Outcomes
	assert.Equal(t, int64(1), outcomes["insert_race"])
	assert.Equal(t, int64(1), outcomes["updated"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrUpdateApplication_VanishedRowIsRetryableConflict(t *testing.T) {
	db, mock := setupMockDB(t)
	service := NewApplicationService(db, nil, nil)

	jobID, candidateID := uuid.New(), uuid.New()
	expectCandidateUpsert(mock, candidateID)
	mock.ExpectQuery(`SELECT application_id, estado FROM applications`).
		WillReturnRows(emptyRows("application_id", "estado"))
	mock.ExpectQuery(`INSERT INTO applications`).
		WillReturnRows(emptyRows(applicationRowColumns...))
	mock.ExpectQuery(`SELECT application_id, estado FROM applications`).
		WillReturnRows(emptyRows("application_id", "estado"))

	_, err := service.CreateOrUpdateApplication(context.Background(), db, newLedgerUpsert(jobID, models.StatusNew))

	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, shared.HTTPStatus(err))
	assert.Equal(t, "DUPLICATE", shared.ErrorCode(err))
	assert.True(t, shared.IsRetryableError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrUpdateApplication_ConstraintViolations(t *testing.T) {
	tests := []struct {
		name    string
		code    pq.ErrorCode
		status  int
		errCode string
	}{
		{name: "missing job", code: "23503", status: http.StatusBadRequest, errCode: "INVALID_RELATION"},
		{name: "unique violation", code: "23505", status: http.StatusConflict, errCode: "DUPLICATE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			service := NewApplicationService(db, nil, nil)

			jobID, candidateID := uuid.New(), uuid.New()
			expectCandidateUpsert(mock, candidateID)
			mock.ExpectQuery(`SELECT application_id, estado FROM applications`).
				WillReturnRows(emptyRows("application_id", "estado"))
			mock.ExpectQuery(`INSERT INTO applications`).
				WillReturnError(&pq.Error{Code: tt.code})

			_, err := service.CreateOrUpdateApplication(context.Background(), db, newLedgerUpsert(jobID, models.StatusNew))

			require.Error(t, err)
			assert.Equal(t, tt.status, shared.HTTPStatus(err))
			assert.Equal(t, tt.errCode, shared.ErrorCode(err))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateOrUpdateApplication_RejectsBadInput(t *testing.T) {
	db, mock := setupMockDB(t)
	service := NewApplicationService(db, nil, nil)

	_, err := service.CreateOrUpdateApplication(context.Background(), db, newLedgerUpsert(uuid.New(), "Archivado"))
	assert.Equal(t, "INVALID_STATUS", shared.ErrorCode(err))

	params := newLedgerUpsert(uuid.New(), models.StatusNew)
	params.Candidate.Email = "   "
	_, err = service.CreateOrUpdateApplication(context.Background(), db, params)
	assert.Equal(t, "EMAIL_REQUIRED", shared.ErrorCode(err))
	assert.Equal(t, http.StatusBadRequest, shared.HTTPStatus(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateApplication_ForeignJobIsRejected(t *testing.T) {
	db, mock := setupMockDB(t)
	service := NewApplicationService(db, nil, nil)

	jobID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT company_id FROM jobs WHERE job_id`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{"company_id"}).AddRow(uuid.New().String()))
	mock.ExpectRollback()

	_, err := service.CreateApplication(context.Background(), uuid.New(), newLedgerUpsert(jobID, models.StatusNew))

	assert.True(t, errors.Is(err, ErrForeignTenant))
	assert.Equal(t, http.StatusForbidden, shared.HTTPStatus(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateApplication_CommitsLedgerWrite(t *testing.T) {
	db, mock := setupMockDB(t)
	service := NewApplicationService(db, nil, nil)

	companyID, jobID, candidateID, applicationID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT company_id FROM jobs WHERE job_id`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{"company_id"}).AddRow(companyID.String()))
	expectCandidateUpsert(mock, candidateID)
	mock.ExpectQuery(`SELECT application_id, estado FROM applications`).
		WillReturnRows(emptyRows("application_id", "estado"))
	mock.ExpectQuery(`INSERT INTO applications`).
		WillReturnRows(applicationRows(applicationID, jobID, candidateID, models.StatusNew))
	mock.ExpectExec(`INSERT INTO application_stage_history`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := service.CreateApplication(context.Background(), companyID, newLedgerUpsert(jobID, models.StatusNew))

	require.NoError(t, err)
	assert.Equal(t, applicationID, result.Application.ApplicationID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus(t *testing.T) {
	companyID, applicationID, jobID, candidateID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	ownerRows := func(status models.ApplicationStatus, owner uuid.UUID) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"estado", "company_id"}).AddRow(string(status), owner.String())
	}

	t.Run("status change writes history", func(t *testing.T) {
		db, mock := setupMockDB(t)
		service := NewApplicationService(db, nil, nil)
		changedBy := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT a.estado, j.company_id`).
			WithArgs(applicationID).
			WillReturnRows(ownerRows(models.StatusNew, companyID))
		mock.ExpectQuery(`UPDATE applications`).
			WithArgs(applicationID, models.StatusOffer).
			WillReturnRows(applicationRows(applicationID, jobID, candidateID, models.StatusOffer))
		mock.ExpectExec(`INSERT INTO application_stage_history`).
			WithArgs(applicationID, models.StatusNew, models.StatusOffer, nil, changedBy).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		app, err := service.UpdateStatus(context.Background(), companyID, applicationID, models.StatusOffer, &changedBy)

		require.NoError(t, err)
		assert.Equal(t, models.StatusOffer, app.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("same status skips history", func(t *testing.T) {
		db, mock := setupMockDB(t)
		service := NewApplicationService(db, nil, nil)
		hook := logtest.NewGlobal()
		defer hook.Reset()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT a.estado, j.company_id`).
			WillReturnRows(ownerRows(models.StatusOffer, companyID))
		mock.ExpectQuery(`UPDATE applications`).
			WillReturnRows(applicationRows(applicationID, jobID, candidateID, models.StatusOffer))
		mock.ExpectCommit()

		_, err := service.UpdateStatus(context.Background(), companyID, applicationID, models.StatusOffer, nil)

		require.NoError(t, err)
		assert.Zero(t, stageChanges(hook))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other company sees not found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		service := NewApplicationService(db, nil, nil)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT a.estado, j.company_id`).
			WillReturnRows(ownerRows(models.StatusNew, uuid.New()))
		mock.ExpectRollback()

		_, err := service.UpdateStatus(context.Background(), companyID, applicationID, models.StatusOffer, nil)

		assert.True(t, errors.Is(err, ErrApplicationNotFound))
		assert.Equal(t, http.StatusNotFound, shared.HTTPStatus(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing application", func(t *testing.T) {
		db, mock := setupMockDB(t)
		service := NewApplicationService(db, nil, nil)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT a.estado, j.company_id`).
			WillReturnRows(emptyRows("estado", "company_id"))
		mock.ExpectRollback()

		_, err := service.UpdateStatus(context.Background(), companyID, applicationID, models.StatusHired, nil)

		assert.True(t, errors.Is(err, ErrApplicationNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown status", func(t *testing.T) {
		db, mock := setupMockDB(t)
		service := NewApplicationService(db, nil, nil)

		_, err := service.UpdateStatus(context.Background(), companyID, applicationID, "Pausado", nil)

		assert.Equal(t, "INVALID_STATUS", shared.ErrorCode(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAddNote(t *testing.T) {
	companyID, applicationID, author := uuid.New(), uuid.New(), uuid.New()

	t.Run("markup only content is rejected", func(t *testing.T) {
		db, mock := setupMockDB(t)
		service := NewApplicationService(db, nil, nil)

		_, err := service.AddNote(context.Background(), companyID, applicationID, &author, "<script>alert(1)</script>", nil)

		assert.Equal(t, "EMPTY_NOTE", shared.ErrorCode(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stores sanitized content", func(t *testing.T) {
		db, mock := setupMockDB(t)
		service := NewApplicationService(db, nil, nil)

		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(applicationID, companyID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`INSERT INTO application_notes`).
			WithArgs(applicationID, author, "Buen perfil", "entrevista").
			WillReturnRows(sqlmock.NewRows([]string{
				"note_id", "application_id", "autor_id", "contenido", "categoria", "created_at", "updated_at",
			}).AddRow(uuid.New().String(), applicationID.String(), author.String(), "Buen perfil", "entrevista", fixedTime, fixedTime))

		note, err := service.AddNote(context.Background(), companyID, applicationID, &author, "<b>Buen</b> perfil", strPtr(" entrevista "))

		require.NoError(t, err)
		assert.Equal(t, "Buen perfil", note.Content)
		require.NotNil(t, note.AuthorID)
		assert.Equal(t, author, *note.AuthorID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("foreign application", func(t *testing.T) {
		db, mock := setupMockDB(t)
		service := NewApplicationService(db, nil, nil)

		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := service.AddNote(context.Background(), companyID, applicationID, &author, "hola", nil)

		assert.True(t, errors.Is(err, ErrApplicationNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
