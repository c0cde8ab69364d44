package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/talentflow/ats-backend/jobs"
	"github.com/talentflow/ats-backend/models"
)

var (
	candidateColumns = []string{
		"candidato_id", "nombre_completo", "email", "telefono", "resumen_url", "linkedin_url",
		"ciudad", "pais", "fuente", "created_at", "updated_at",
	}
	applicationRowColumns = []string{
		"application_id", "job_id", "candidato_id", "estado", "source", "source_details",
		"salario_expectativa", "moneda", "applied_at", "updated_at",
	}
	fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func candidateRows(candidateID uuid.UUID, name, email string) *sqlmock.Rows {
	return sqlmock.NewRows(candidateColumns).AddRow(
		candidateID.String(), name, email, nil, nil, nil, nil, nil, "portal_publico", fixedTime, fixedTime,
	)
}

func applicationRows(applicationID, jobID, candidateID uuid.UUID, status models.ApplicationStatus) *sqlmock.Rows {
	return sqlmock.NewRows(applicationRowColumns).AddRow(
		applicationID.String(), jobID.String(), candidateID.String(), string(status),
		"portal_publico", `{"channel":"portal_publico"}`, nil, nil, fixedTime, fixedTime,
	)
}

func lockRows(applicationID uuid.UUID, status models.ApplicationStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"application_id", "estado"}).AddRow(applicationID.String(), string(status))
}

func emptyRows(columns ...string) *sqlmock.Rows {
	return sqlmock.NewRows(columns)
}

func strPtr(s string) *string { return &s }

// syncSubmitter runs submitted tasks inline so tests can assert on their effects
type syncSubmitter struct {
	mu    sync.Mutex
	names []string
	errs  []error
}

func (s *syncSubmitter) Submit(name string, task jobs.Task) bool {
	err := task(context.Background())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	s.errs = append(s.errs, err)
	return true
}

func (s *syncSubmitter) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}
