package services

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentflow/ats-backend/database"
	"github.com/talentflow/ats-backend/models"
	"github.com/talentflow/ats-backend/shared"
)

// openIntegrationDB connects to TEST_DATABASE_URL and migrates the schema.
// The test is skipped when no database is reachable.
func openIntegrationDB(t *testing.T) *sql.DB {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("database unavailable: %v", err)
	}

	previous := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = previous
		db.Close()
	})
	require.NoError(t, database.Migrate("../database/schema.sql"))
	return db
}

// seedOpenJob creates an active company with one open job and removes
// both, with everything hanging off them, when the test ends
func seedOpenJob(t *testing.T, db *sql.DB) (companyID, jobID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	slug := "it-" + uuid.NewString()[:8]
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO companies (nombre, slug) VALUES ($1, $2) RETURNING company_id`,
		"Integration Co", slug).Scan(&companyID))
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO jobs (company_id, titulo) VALUES ($1, $2) RETURNING job_id`,
		companyID, "Backend Engineer").Scan(&jobID))
	t.Cleanup(func() {
		db.Exec(`DELETE FROM public_applications_log WHERE job_id = $1`, jobID)
		db.Exec(`DELETE FROM companies WHERE company_id = $1`, companyID)
	})
	return companyID, jobID
}

func TestLedgerIntegration_HistoryOnlyOnChange(t *testing.T) {
	db := openIntegrationDB(t)
	ctx := context.Background()
	companyID, jobID := seedOpenJob(t, db)

	email := "ledger-" + uuid.NewString()[:8] + "@example.com"
	t.Cleanup(func() {
		db.Exec(`DELETE FROM candidatos WHERE email = $1`, email)
	})

	utility := NewUtilityService()
	ledger := NewApplicationService(db, NewCandidateService(utility), utility)
	upsert := models.ApplicationUpsert{
		JobID:     jobID,
		Candidate: models.CandidateInput{FullName: "Integration Candidate", Email: email},
		Status:    models.StatusNew,
	}

	first, err := ledger.CreateApplication(ctx, companyID, upsert)
	require.NoError(t, err)
	assert.False(t, first.WasExisting)

	second, err := ledger.CreateApplication(ctx, companyID, upsert)
	require.NoError(t, err)
	assert.True(t, second.WasExisting)
	assert.Equal(t, first.Application.ApplicationID, second.Application.ApplicationID)

	applicationID := first.Application.ApplicationID
	_, err = ledger.UpdateStatus(ctx, companyID, applicationID, models.StatusInterview, nil)
	require.NoError(t, err)
	_, err = ledger.UpdateStatus(ctx, companyID, applicationID, models.StatusInterview, nil)
	require.NoError(t, err)

	history, err := ledger.ListStageHistory(ctx, companyID, applicationID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	_, err = ledger.UpdateStatus(ctx, uuid.New(), applicationID, models.StatusHired, nil)
	assert.ErrorIs(t, err, ErrApplicationNotFound)
}

func TestCandidateIntegration_MergeKeepsKnownFields(t *testing.T) {
	db := openIntegrationDB(t)
	ctx := context.Background()

	email := "merge-" + uuid.NewString()[:8] + "@example.com"
	t.Cleanup(func() {
		db.Exec(`DELETE FROM candidatos WHERE email = $1`, email)
	})

	candidates := NewCandidateService(NewUtilityService())

	first, err := candidates.UpsertCandidate(ctx, db, models.CandidateInput{
		FullName: "Merge Candidate",
		Email:    email,
		Phone:    strPtr("+52 55 0000 0000"),
	})
	require.NoError(t, err)
	assert.Nil(t, first.City)

	second, err := candidates.UpsertCandidate(ctx, db, models.CandidateInput{
		FullName: "Merge Candidate",
		Email:    strings.ToUpper(email),
		City:     strPtr("Guadalajara"),
	})
	require.NoError(t, err)

	assert.Equal(t, first.CandidateID, second.CandidateID)
	require.NotNil(t, second.Phone)
	assert.Equal(t, "+52 55 0000 0000", *second.Phone)
	require.NotNil(t, second.City)
	assert.Equal(t, "Guadalajara", *second.City)
}

// TestIntakeIntegration_SubmitToReports follows one candidate from the
// public portal through a recruiter decision into the funnel reports
func TestIntakeIntegration_SubmitToReports(t *testing.T) {
	db := openIntegrationDB(t)
	ctx := context.Background()
	companyID, jobID := seedOpenJob(t, db)

	email := "e2e-" + uuid.NewString()[:8] + "@example.com"
	t.Cleanup(func() {
		db.Exec(`DELETE FROM candidatos WHERE email = $1`, email)
	})

	cfg := shared.IntakeConfig{
		Enabled:         true,
		LogAttempts:     true,
		RateLimitMax:    10,
		RateLimitWindow: time.Minute,
		PortalURL:       "https://portal.example.com",
	}
	utility := NewUtilityService()
	submitter := &syncSubmitter{}
	ledger := NewApplicationService(db, NewCandidateService(utility), utility)
	limiter := shared.NewSlidingWindowLimiter(shared.NewMemoryWindowStore(), cfg.RateLimitMax, cfg.RateLimitWindow)
	intake := NewPublicIntakeService(PublicIntakeDeps{
		DB:         db,
		Abuse:      NewAbuseControl(limiter, nil, cfg),
		Ledger:     ledger,
		Attempts:   NewAttemptLogger(db, submitter, cfg.LogAttempts),
		Notifier:   &recordingNotifier{},
		Dispatcher: submitter,
		Utility:    utility,
	}, cfg)

	input := models.PublicApplicationInput{
		FullName:      "Portal Candidate",
		Email:         email,
		AcceptsPolicy: true,
		Channel:       strPtr("linkedin"),
	}
	ua := "Mozilla/5.0 (iPhone)"
	client := models.ClientInfo{IP: "198.51.100.7", UserAgent: &ua}

	first, err := intake.Submit(ctx, jobID.String(), input, client)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptReceived, first.Status)

	second, err := intake.Submit(ctx, jobID.String(), input, client)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptDuplicate, second.Status)
	assert.Equal(t, first.Application.ApplicationID, second.Application.ApplicationID)

	var logged []string
	rows, err := db.QueryContext(ctx,
		`SELECT status FROM public_applications_log WHERE job_id = $1 ORDER BY log_id`, jobID)
	require.NoError(t, err)
	for rows.Next() {
		var status string
		require.NoError(t, rows.Scan(&status))
		logged = append(logged, status)
	}
	require.NoError(t, rows.Err())
	rows.Close()
	assert.Equal(t, []string{"received", "duplicate"}, logged)

	applicationID := first.Application.ApplicationID
	_, err = ledger.UpdateStatus(ctx, companyID, applicationID, models.StatusInterview, nil)
	require.NoError(t, err)

	filter := models.ReportFilter{CompanyID: &companyID}
	reports := NewReportService(db)

	conversion, err := reports.Conversion(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, models.ConversionSummary{TotalLogs: 2, Matched: 1, Interviews: 1}, conversion.Summary)

	var firstAttempt, changedAt time.Time
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT MIN(created_at) FROM public_applications_log WHERE job_id = $1`, jobID).Scan(&firstAttempt))
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT changed_at FROM application_stage_history WHERE application_id = $1 AND estado_nuevo = $2`,
		applicationID, models.StatusInterview).Scan(&changedAt))

	response, err := reports.ResponseTime(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), response.Samples)
	require.NotNil(t, response.AvgHours)
	assert.InDelta(t, changedAt.Sub(firstAttempt).Hours(), *response.AvgHours, 1e-9)
	require.NotNil(t, response.MedianHours)
	assert.InDelta(t, *response.AvgHours, *response.MedianHours, 1e-9)
}
