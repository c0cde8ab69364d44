package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/talentflow/ats-backend/database"
	"github.com/talentflow/ats-backend/models"
	"github.com/talentflow/ats-backend/shared"
)

const publicJobColumns = `
	j.job_id, j.titulo, j.descripcion, j.departamento, j.tipo_empleo, j.modalidad_trabajo,
	j.ubicacion, j.rango_salarial_min, j.rango_salarial_max, j.moneda,
	j.fecha_publicacion, j.fecha_cierre, j.fecha_registro,
	c.company_id, c.nombre, c.slug`

// CatalogService serves the read-only public portal listings
type CatalogService struct {
	db database.Querier
}

func NewCatalogService(db database.Querier) *CatalogService {
	return &CatalogService{db: db}
}

// ListCompanies returns active companies ordered by name
func (s *CatalogService) ListCompanies(ctx context.Context, search string, limit int) ([]models.PublicCompany, error) {
	w := &whereBuilder{}
	w.addRaw("c.is_active = TRUE")
	if search = strings.TrimSpace(search); search != "" {
		w.add("(LOWER(c.nombre) LIKE $%[1]d ESCAPE '\\' OR LOWER(c.slug) LIKE $%[1]d ESCAPE '\\')", likePattern(search))
	}
	w.args = append(w.args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT c.company_id, c.nombre, c.slug
		FROM companies c
		%s
		ORDER BY c.nombre ASC
		LIMIT $%d
	`, w.clause(), len(w.args)), w.args...)
	if err != nil {
		return nil, shared.ClassifyPostgresError(err, "CatalogService", "ListCompanies")
	}
	defer rows.Close()

	companies := make([]models.PublicCompany, 0)
	for rows.Next() {
		var company models.PublicCompany
		if err := rows.Scan(&company.CompanyID, &company.Name, &company.Slug); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, company)
	}
	return companies, rows.Err()
}

// ListJobs returns one page of open jobs of active companies. The page is
// clamped to the last available page.
func (s *CatalogService) ListJobs(ctx context.Context, filter models.PublicJobFilter) (*models.PublicJobPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = 10
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	w := &whereBuilder{}
	w.addRaw("j.estado = 'abierto'")
	w.addRaw("c.is_active = TRUE")
	if filter.CompanyID != nil {
		w.add("j.company_id = $%d", *filter.CompanyID)
	}
	if slug := strings.TrimSpace(filter.CompanySlug); slug != "" {
		w.add("LOWER(c.slug) = $%d", strings.ToLower(slug))
	}
	if filter.EmploymentType != "" {
		w.add("j.tipo_empleo = $%d", filter.EmploymentType)
	}
	if filter.Modality != "" {
		w.add("j.modalidad_trabajo = $%d", filter.Modality)
	}
	if location := strings.TrimSpace(filter.Location); location != "" {
		w.add("LOWER(j.ubicacion) LIKE $%d ESCAPE '\\'", likePattern(location))
	}
	if department := strings.TrimSpace(filter.Department); department != "" {
		w.add("LOWER(COALESCE(j.departamento, '')) LIKE $%d ESCAPE '\\'", likePattern(department))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		w.add("(LOWER(j.titulo) LIKE $%[1]d ESCAPE '\\' OR LOWER(j.descripcion) LIKE $%[1]d ESCAPE '\\')", likePattern(search))
	}

	var total int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM jobs j
		JOIN companies c ON c.company_id = j.company_id
		%s
	`, w.clause()), w.args...).Scan(&total)
	if err != nil {
		return nil, shared.ClassifyPostgresError(err, "CatalogService", "ListJobs")
	}

	pages := int(math.Max(1, math.Ceil(float64(total)/float64(filter.Limit))))
	page := filter.Page
	if page > pages {
		page = pages
	}
	offset := (page - 1) * filter.Limit

	args := append(append([]interface{}{}, w.args...), filter.Limit, offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM jobs j
		JOIN companies c ON c.company_id = j.company_id
		%s
		ORDER BY j.fecha_publicacion DESC NULLS LAST, j.fecha_registro DESC
		LIMIT $%d OFFSET $%d
	`, publicJobColumns, w.clause(), len(w.args)+1, len(w.args)+2), args...)
	if err != nil {
		return nil, shared.ClassifyPostgresError(err, "CatalogService", "ListJobs")
	}
	defer rows.Close()

	result := &models.PublicJobPage{
		Items: make([]models.PublicJob, 0),
		Total: total,
		Page:  page,
		Pages: pages,
		Limit: filter.Limit,
	}
	for rows.Next() {
		job, err := scanPublicJob(rows)
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, *job)
	}
	return result, rows.Err()
}

// GetJob returns an open job of an active company, or ErrJobNotFound
func (s *CatalogService) GetJob(ctx context.Context, jobID uuid.UUID) (*models.PublicJob, error) {
	job, err := scanPublicJob(s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM jobs j
		JOIN companies c ON c.company_id = j.company_id
		WHERE j.job_id = $1 AND j.estado = 'abierto' AND c.is_active = TRUE
		LIMIT 1
	`, publicJobColumns), jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, shared.ClassifyPostgresError(err, "CatalogService", "GetJob")
	}
	return job, nil
}

func scanPublicJob(row rowScanner) (*models.PublicJob, error) {
	var job models.PublicJob
	err := row.Scan(
		&job.JobID, &job.Title, &job.Description, &job.Department, &job.EmploymentType, &job.Modality,
		&job.Location, &job.SalaryMin, &job.SalaryMax, &job.Currency,
		&job.PublishedAt, &job.ClosesAt, &job.CreatedAt,
		&job.CompanyID, &job.CompanyName, &job.CompanySlug,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring match with LIKE wildcards in value taken literally
func likePattern(value string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(value)) + "%"
}
