package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/talentflow/ats-backend/models"
)

// IntakeSubmitter processes public applications. *services.PublicIntakeService implements it.
type IntakeSubmitter interface {
	Submit(ctx context.Context, rawJobID string, input models.PublicApplicationInput, client models.ClientInfo) (*models.IntakeResult, error)
}

// CatalogReader serves public listings. *services.CachedCatalogService implements it.
type CatalogReader interface {
	ListCompanies(ctx context.Context, search string, limit int) ([]models.PublicCompany, error)
	ListJobs(ctx context.Context, filter models.PublicJobFilter) (*models.PublicJobPage, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.PublicJob, error)
}

type PublicHandler struct {
	Intake  IntakeSubmitter
	Catalog CatalogReader
}

func NewPublicHandler(intake IntakeSubmitter, catalog CatalogReader) *PublicHandler {
	return &PublicHandler{Intake: intake, Catalog: catalog}
}

// Apply handles POST /public/jobs/:id/apply
func (h *PublicHandler) Apply(c *fiber.Ctx) error {
	var input models.PublicApplicationInput
	if err := c.BodyParser(&input); err != nil {
		// Undecodable bodies still go through the pipeline so the attempt is
		// logged as invalid.
		input = models.PublicApplicationInput{}
	}

	result, err := h.Intake.Submit(c.UserContext(), c.Params("id"), input, models.ClientInfo{
		IP:        clientIP(c),
		UserAgent: optionalHeader(c, fiber.HeaderUserAgent),
	})
	if err != nil {
		return errorResponse(c, err)
	}

	status := fiber.StatusCreated
	if result.Status == models.AttemptDuplicate {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"success":     true,
		"status":      result.Status,
		"application": result.Application,
	})
}

// ListCompanies handles GET /public/companies
func (h *PublicHandler) ListCompanies(c *fiber.Ctx) error {
	search := c.Query("search")
	if len(search) > 120 {
		return badRequest(c, "INVALID_PARAMS", "search is too long")
	}
	limit, ok := intQuery(c, "limit", 50, 1, 100)
	if !ok {
		return badRequest(c, "INVALID_PARAMS", "limit must be between 1 and 100")
	}

	companies, err := h.Catalog.ListCompanies(c.UserContext(), search, limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"items":   companies,
	})
}

// ListJobs handles GET /public/jobs
func (h *PublicHandler) ListJobs(c *fiber.Ctx) error {
	page, ok := intQuery(c, "page", 1, 1, 0)
	if !ok {
		return badRequest(c, "INVALID_PARAMS", "page must be a positive integer")
	}
	limit, ok := intQuery(c, "limit", 10, 1, 50)
	if !ok {
		return badRequest(c, "INVALID_PARAMS", "limit must be between 1 and 50")
	}

	filter := models.PublicJobFilter{
		Page:           page,
		Limit:          limit,
		Search:         c.Query("search"),
		CompanySlug:    c.Query("company_slug"),
		EmploymentType: c.Query("employment_type"),
		Modality:       c.Query("modality"),
		Location:       c.Query("location"),
		Department:     c.Query("department"),
	}

	for _, value := range []string{filter.Search, filter.CompanySlug, filter.Location, filter.Department} {
		if len(value) > 120 {
			return badRequest(c, "INVALID_PARAMS", "filter value is too long")
		}
	}
	if raw := c.Query("company_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "INVALID_PARAMS", "company_id must be a uuid")
		}
		filter.CompanyID = &id
	}
	if filter.EmploymentType != "" && !contains(models.EmploymentTypes, filter.EmploymentType) {
		return badRequest(c, "INVALID_PARAMS", "unknown employment_type")
	}
	if filter.Modality != "" && !contains(models.WorkModalities, filter.Modality) {
		return badRequest(c, "INVALID_PARAMS", "unknown modality")
	}

	jobs, err := h.Catalog.ListJobs(c.UserContext(), filter)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"items":   jobs.Items,
		"total":   jobs.Total,
		"page":    jobs.Page,
		"pages":   jobs.Pages,
		"limit":   jobs.Limit,
	})
}

// GetJob handles GET /public/jobs/:id
func (h *PublicHandler) GetJob(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "INVALID_ID", "invalid job id")
	}

	job, err := h.Catalog.GetJob(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"job":     job,
	})
}

// intQuery parses an integer query parameter. max <= 0 means unbounded.
func intQuery(c *fiber.Ctx, key string, fallback, min, max int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < min || (max > 0 && value > max) {
		return 0, false
	}
	return value, true
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
