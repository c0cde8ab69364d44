package models

import (
	"time"

	"github.com/google/uuid"
)

// Job states
const (
	JobOpen   = "abierto"
	JobPaused = "pausado"
	JobClosed = "cerrado"
)

// EmploymentTypes accepted by the public job filter
var EmploymentTypes = []string{"tiempo_completo", "medio_tiempo", "contrato", "practicas", "temporal"}

// WorkModalities accepted by the public job filter
var WorkModalities = []string{"presencial", "remoto", "hibrido"}

// PublicCompany is an active company as listed on the public portal
type PublicCompany struct {
	CompanyID uuid.UUID `json:"company_id"`
	Name      string    `json:"nombre"`
	Slug      string    `json:"slug"`
}

// PublicJob is an open job of an active company
type PublicJob struct {
	JobID          uuid.UUID  `json:"job_id"`
	Title          string     `json:"titulo"`
	Description    string     `json:"descripcion"`
	Department     *string    `json:"departamento"`
	EmploymentType string     `json:"tipo_empleo"`
	Modality       string     `json:"modalidad_trabajo"`
	Location       *string    `json:"ubicacion"`
	SalaryMin      *float64   `json:"rango_salarial_min"`
	SalaryMax      *float64   `json:"rango_salarial_max"`
	Currency       *string    `json:"moneda"`
	PublishedAt    *time.Time `json:"fecha_publicacion"`
	ClosesAt       *time.Time `json:"fecha_cierre"`
	CreatedAt      time.Time  `json:"fecha_registro"`
	CompanyID      uuid.UUID  `json:"company_id"`
	CompanyName    string     `json:"company_nombre"`
	CompanySlug    string     `json:"company_slug"`
}

// PublicJobFilter narrows the public job listing
type PublicJobFilter struct {
	Page           int
	Limit          int
	Search         string
	CompanyID      *uuid.UUID
	CompanySlug    string
	EmploymentType string
	Modality       string
	Location       string
	Department     string
}

// PublicJobPage is one page of the public job listing
type PublicJobPage struct {
	Items []PublicJob `json:"items"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Pages int         `json:"pages"`
	Limit int         `json:"limit"`
}

// IntakeJob is the locked job row the intake pipeline checks before writing
type IntakeJob struct {
	JobID         uuid.UUID
	CompanyID     uuid.UUID
	Status        string
	CompanyActive bool
	Title         string
	CompanyName   string
}

// AcceptsApplications reports whether the job is open and its company active
func (j IntakeJob) AcceptsApplications() bool {
	return j.Status == JobOpen && j.CompanyActive
}

// CurrentUser is the authenticated platform user resolved from a token
type CurrentUser struct {
	UserID       uuid.UUID  `json:"user_id"`
	Email        string     `json:"email"`
	Name         string     `json:"nombre"`
	Role         string     `json:"rol"`
	CompanyID    *uuid.UUID `json:"company_id"`
	IsSuperAdmin bool       `json:"is_super_admin"`
}

// CanViewReports reports whether the user may read analytics
func (u CurrentUser) CanViewReports() bool {
	return u.IsSuperAdmin || u.Role == "admin" || u.Role == "hr_admin"
}
