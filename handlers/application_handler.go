package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/talentflow/ats-backend/middleware"
	"github.com/talentflow/ats-backend/models"
)

// ApplicationManager is the tenant scoped ledger API. *services.ApplicationService implements it.
type ApplicationManager interface {
	CreateApplication(ctx context.Context, companyID uuid.UUID, params models.ApplicationUpsert) (*models.ApplicationUpsertResult, error)
	UpdateStatus(ctx context.Context, companyID, applicationID uuid.UUID, status models.ApplicationStatus, changedBy *uuid.UUID) (*models.Application, error)
	ListStageHistory(ctx context.Context, companyID, applicationID uuid.UUID) ([]models.StageHistoryEntry, error)
	ListByJob(ctx context.Context, companyID, jobID uuid.UUID, status *models.ApplicationStatus) ([]models.ApplicationListItem, error)
	ListNotes(ctx context.Context, companyID, applicationID uuid.UUID) ([]models.ApplicationNote, error)
	AddNote(ctx context.Context, companyID, applicationID uuid.UUID, author *uuid.UUID, content string, category *string) (*models.ApplicationNote, error)
}

type ApplicationHandler struct {
	Service ApplicationManager
}

func NewApplicationHandler(service ApplicationManager) *ApplicationHandler {
	return &ApplicationHandler{Service: service}
}

type createApplicationRequest struct {
	JobID          string                `json:"job_id"`
	Candidate      models.CandidateInput `json:"candidato"`
	Status         *string               `json:"estado"`
	Source         *string               `json:"source"`
	SourceDetails  json.RawMessage       `json:"source_details"`
	ExpectedSalary *float64              `json:"salario_expectativa"`
	Currency       *string               `json:"moneda"`
	Comment        *string               `json:"comentario"`
}

type updateStatusRequest struct {
	Status string `json:"estado"`
}

type createNoteRequest struct {
	Content  string  `json:"contenido"`
	Category *string `json:"categoria"`
}

// tenant returns the resolved company or writes a 400
func tenant(c *fiber.Ctx) (uuid.UUID, bool) {
	companyID := middleware.CompanyID(c)
	if companyID == nil {
		return uuid.Nil, false
	}
	return *companyID, true
}

func companyRequired(c *fiber.Ctx) error {
	return badRequest(c, "COMPANY_REQUIRED", "Company could not be determined")
}

func actor(c *fiber.Ctx) *uuid.UUID {
	if user := middleware.CurrentUser(c); user != nil {
		id := user.UserID
		return &id
	}
	return nil
}

// Create handles POST /api/applications
func (h *ApplicationHandler) Create(c *fiber.Ctx) error {
	var req createApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "INVALID_PAYLOAD", "Invalid request body")
	}

	companyID, ok := tenant(c)
	if !ok {
		return companyRequired(c)
	}

	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		return badRequest(c, "INVALID_PAYLOAD", "job_id must be a uuid")
	}
	if len([]rune(strings.TrimSpace(req.Candidate.FullName))) < 3 {
		return badRequest(c, "INVALID_PAYLOAD", "candidato.nombre_completo must have at least 3 characters")
	}
	if strings.TrimSpace(req.Candidate.Email) == "" {
		return badRequest(c, "INVALID_PAYLOAD", "candidato.email is required")
	}
	req.Candidate.FullName = strings.TrimSpace(req.Candidate.FullName)

	status := models.StatusNew
	if req.Status != nil {
		parsed, valid := models.ParseApplicationStatus(*req.Status)
		if !valid {
			return badRequest(c, "INVALID_STATUS", "Unknown estado")
		}
		status = parsed
	}

	if len(req.SourceDetails) > 0 && string(req.SourceDetails) == "null" {
		req.SourceDetails = nil
	}

	result, err := h.Service.CreateApplication(c.UserContext(), companyID, models.ApplicationUpsert{
		JobID:          jobID,
		Candidate:      req.Candidate,
		Status:         status,
		Source:         req.Source,
		SourceDetails:  req.SourceDetails,
		ExpectedSalary: req.ExpectedSalary,
		Currency:       req.Currency,
		ChangedBy:      actor(c),
		HistoryComment: req.Comment,
	})
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":         true,
		"application":     result.Application,
		"was_existing":    result.WasExisting,
		"previous_status": result.PreviousStatus,
	})
}

// UpdateStatus handles PUT /api/applications/:id
func (h *ApplicationHandler) UpdateStatus(c *fiber.Ctx) error {
	companyID, ok := tenant(c)
	if !ok {
		return companyRequired(c)
	}

	applicationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "INVALID_ID", "invalid application id")
	}

	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "INVALID_PAYLOAD", "Invalid request body")
	}
	status, valid := models.ParseApplicationStatus(req.Status)
	if !valid {
		return badRequest(c, "INVALID_STATUS", "Unknown estado")
	}

	application, err := h.Service.UpdateStatus(c.UserContext(), companyID, applicationID, status, actor(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"application": application,
	})
}

// StageHistory handles GET /api/applications/:id/stage-history
func (h *ApplicationHandler) StageHistory(c *fiber.Ctx) error {
	companyID, ok := tenant(c)
	if !ok {
		return companyRequired(c)
	}

	applicationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "INVALID_ID", "invalid application id")
	}

	entries, err := h.Service.ListStageHistory(c.UserContext(), companyID, applicationID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"items":   entries,
	})
}

// ListByJob handles GET /api/jobs/:job_id/applications
func (h *ApplicationHandler) ListByJob(c *fiber.Ctx) error {
	companyID, ok := tenant(c)
	if !ok {
		return companyRequired(c)
	}

	jobID, err := uuid.Parse(c.Params("job_id"))
	if err != nil {
		return badRequest(c, "INVALID_ID", "invalid job id")
	}

	var status *models.ApplicationStatus
	if raw := c.Query("estado"); raw != "" {
		parsed, valid := models.ParseApplicationStatus(raw)
		if !valid {
			return badRequest(c, "INVALID_STATUS", "Unknown estado")
		}
		status = &parsed
	}

	items, err := h.Service.ListByJob(c.UserContext(), companyID, jobID, status)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"items":   items,
	})
}

// ListNotes handles GET /api/applications/:id/notes
func (h *ApplicationHandler) ListNotes(c *fiber.Ctx) error {
	companyID, ok := tenant(c)
	if !ok {
		return companyRequired(c)
	}

	applicationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "INVALID_ID", "invalid application id")
	}

	notes, err := h.Service.ListNotes(c.UserContext(), companyID, applicationID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"items":   notes,
	})
}

// AddNote handles POST /api/applications/:id/notes. The author is the caller.
func (h *ApplicationHandler) AddNote(c *fiber.Ctx) error {
	companyID, ok := tenant(c)
	if !ok {
		return companyRequired(c)
	}

	applicationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "INVALID_ID", "invalid application id")
	}

	var req createNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "INVALID_PAYLOAD", "Invalid request body")
	}
	if req.Category != nil && len(*req.Category) > 60 {
		return badRequest(c, "INVALID_PAYLOAD", "categoria is too long")
	}

	note, err := h.Service.AddNote(c.UserContext(), companyID, applicationID, actor(c), req.Content, req.Category)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"note":    note,
	})
}
