package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/database"
	"github.com/talentflow/ats-backend/models"
	"github.com/talentflow/ats-backend/shared"
)

const upsertCandidateQuery = `
	INSERT INTO candidatos (
		nombre_completo, email, telefono, resumen_url, linkedin_url, ciudad, pais, fuente
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (email) DO UPDATE
		SET nombre_completo = EXCLUDED.nombre_completo,
			telefono = COALESCE(EXCLUDED.telefono, candidatos.telefono),
			resumen_url = COALESCE(EXCLUDED.resumen_url, candidatos.resumen_url),
			linkedin_url = COALESCE(EXCLUDED.linkedin_url, candidatos.linkedin_url),
			ciudad = COALESCE(EXCLUDED.ciudad, candidatos.ciudad),
			pais = COALESCE(EXCLUDED.pais, candidatos.pais),
			fuente = COALESCE(EXCLUDED.fuente, candidatos.fuente),
			updated_at = NOW()
	RETURNING candidato_id, nombre_completo, email, telefono, resumen_url, linkedin_url,
		ciudad, pais, fuente, created_at, updated_at
`

// CandidateService resolves candidate identity by email
type CandidateService struct {
	utility *UtilityService
}

func NewCandidateService(utility *UtilityService) *CandidateService {
	if utility == nil {
		utility = NewUtilityService()
	}
	return &CandidateService{utility: utility}
}

// UpsertCandidate merges the submitted profile into the candidate keyed by
// lower-cased email. The full name always takes the new value; every other
// field keeps the stored value unless a new one is supplied.
func (s *CandidateService) UpsertCandidate(ctx context.Context, q database.Querier, input models.CandidateInput) (*models.Candidate, error) {
	email := s.utility.NormalizeEmail(input.Email)
	if email == "" {
		return nil, shared.NewServiceError(shared.ErrorCategoryValidation, "EMAIL_REQUIRED",
			"candidate email is required", "CandidateService", "UpsertCandidate", false, nil)
	}

	var candidate models.Candidate
	err := q.QueryRowContext(ctx, upsertCandidateQuery,
		input.FullName,
		email,
		s.utility.NormalizeOptional(input.Phone),
		s.utility.NormalizeOptional(input.ResumeURL),
		s.utility.NormalizeOptional(input.LinkedInURL),
		s.utility.NormalizeOptional(input.City),
		s.utility.NormalizeOptional(input.Country),
		s.utility.NormalizeOptional(input.Source),
	).Scan(
		&candidate.CandidateID,
		&candidate.FullName,
		&candidate.Email,
		&candidate.Phone,
		&candidate.ResumeURL,
		&candidate.LinkedInURL,
		&candidate.City,
		&candidate.Country,
		&candidate.Source,
		&candidate.CreatedAt,
		&candidate.UpdatedAt,
	)
	if err != nil {
		return nil, shared.ClassifyPostgresError(fmt.Errorf("upsert candidate: %w", err), "CandidateService", "UpsertCandidate")
	}

	logrus.WithFields(logrus.Fields{
		"component":    "CandidateService",
		"candidato_id": candidate.CandidateID,
	}).Debug("Candidate resolved")

	return &candidate, nil
}
