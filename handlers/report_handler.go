package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/talentflow/ats-backend/middleware"
	"github.com/talentflow/ats-backend/models"
	"github.com/talentflow/ats-backend/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportReader is the analytics API. *services.ReportService implements it.
type ReportReader interface {
	DailyStatus(ctx context.Context, filter models.ReportFilter) (*models.DailyStatusReport, error)
	Conversion(ctx context.Context, filter models.ReportFilter) (*models.ConversionReport, error)
	ResponseTime(ctx context.Context, filter models.ReportFilter) (*models.ResponseTimeReport, error)
	Sources(ctx context.Context, filter models.ReportFilter) (*models.SourcesReport, error)
	Invitations(ctx context.Context, filter models.ReportFilter) (*models.InvitationReport, error)
	BuildPublicApplicationsExport(ctx context.Context, filter models.ReportFilter) (*services.PublicApplicationsExport, error)
}

type ReportHandler struct {
	Service ReportReader
}

func NewReportHandler(service ReportReader) *ReportHandler {
	return &ReportHandler{Service: service}
}

// parseReportFilter reads start, end, status and company_id. Only super
// admins may choose company_id; everyone else gets their own company.
func parseReportFilter(c *fiber.Ctx) (models.ReportFilter, error) {
	var (
		filter models.ReportFilter
		err    error
	)

	if filter.Start, err = queryDay(c, "start"); err != nil {
		return filter, err
	}
	if filter.End, err = queryDay(c, "end"); err != nil {
		return filter, err
	}
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return filter, fmt.Errorf("end must not be before start")
	}

	if raw := c.Query("status"); raw != "" {
		status := models.AttemptStatus(raw)
		if !status.IsValid() {
			return filter, fmt.Errorf("unknown status %q", raw)
		}
		filter.Status = &status
	}

	user := middleware.CurrentUser(c)
	if user != nil && user.IsSuperAdmin {
		if raw := c.Query("company_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return filter, fmt.Errorf("company_id must be a uuid")
			}
			filter.CompanyID = &id
		} else {
			filter.CompanyID = middleware.CompanyID(c)
		}
		return filter, nil
	}

	filter.CompanyID = middleware.CompanyID(c)
	return filter, nil
}

func queryDay(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a YYYY-MM-DD date", key)
	}
	return &day, nil
}

// scopedFilter parses the filter and writes the error response itself when
// the request cannot be served. ok is false in that case.
func scopedFilter(c *fiber.Ctx) (models.ReportFilter, bool, error) {
	filter, err := parseReportFilter(c)
	if err != nil {
		return filter, false, badRequest(c, "INVALID_PARAMS", err.Error())
	}

	user := middleware.CurrentUser(c)
	if filter.CompanyID == nil && (user == nil || !user.IsSuperAdmin) {
		return filter, false, c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "User has no company assigned",
			"code":    "FORBIDDEN",
		})
	}
	return filter, true, nil
}

func (h *ReportHandler) withFilter(c *fiber.Ctx, run func(filter models.ReportFilter) (interface{}, error)) error {
	filter, ok, err := scopedFilter(c)
	if !ok {
		return err
	}

	data, err := run(filter)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// PublicApplications handles GET /api/reports/public-applications
func (h *ReportHandler) PublicApplications(c *fiber.Ctx) error {
	return h.withFilter(c, func(filter models.ReportFilter) (interface{}, error) {
		return h.Service.DailyStatus(c.UserContext(), filter)
	})
}

// Conversion handles GET /api/reports/public-applications/conversion
func (h *ReportHandler) Conversion(c *fiber.Ctx) error {
	return h.withFilter(c, func(filter models.ReportFilter) (interface{}, error) {
		return h.Service.Conversion(c.UserContext(), filter)
	})
}

// ResponseTime handles GET /api/reports/public-applications/response-time
func (h *ReportHandler) ResponseTime(c *fiber.Ctx) error {
	return h.withFilter(c, func(filter models.ReportFilter) (interface{}, error) {
		return h.Service.ResponseTime(c.UserContext(), filter)
	})
}

// Sources handles GET /api/reports/public-applications/sources
func (h *ReportHandler) Sources(c *fiber.Ctx) error {
	return h.withFilter(c, func(filter models.ReportFilter) (interface{}, error) {
		return h.Service.Sources(c.UserContext(), filter)
	})
}

// Invitations handles GET /api/reports/invitations
func (h *ReportHandler) Invitations(c *fiber.Ctx) error {
	return h.withFilter(c, func(filter models.ReportFilter) (interface{}, error) {
		return h.Service.Invitations(c.UserContext(), filter)
	})
}

// Export handles GET /api/reports/public-applications/export
func (h *ReportHandler) Export(c *fiber.Ctx) error {
	filter, ok, err := scopedFilter(c)
	if !ok {
		return err
	}

	export, err := h.Service.BuildPublicApplicationsExport(c.UserContext(), filter)
	if err != nil {
		return errorResponse(c, err)
	}
	workbook, err := services.GeneratePublicApplicationsWorkbook(export)
	if err != nil {
		return errorResponse(c, err)
	}

	filename := fmt.Sprintf("postulaciones_publicas_%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(workbook)
}
