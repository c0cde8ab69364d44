package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ApplicationStatus is the pipeline stage of an application
type ApplicationStatus string

const (
	StatusNew       ApplicationStatus = "Nuevo"
	StatusInReview  ApplicationStatus = "En revision"
	StatusInterview ApplicationStatus = "Entrevista"
	StatusOffer     ApplicationStatus = "Oferta"
	StatusHired     ApplicationStatus = "Contratado"
	StatusRejected  ApplicationStatus = "Rechazado"
)

// ApplicationStatuses lists every status in funnel order
var ApplicationStatuses = []ApplicationStatus{
	StatusNew,
	StatusInReview,
	StatusInterview,
	StatusOffer,
	StatusHired,
	StatusRejected,
}

// IsValid reports whether s is a known status
func (s ApplicationStatus) IsValid() bool {
	for _, status := range ApplicationStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// ParseApplicationStatus accepts the stored values plus the accented
// spelling "En revisión" used by clients.
func ParseApplicationStatus(raw string) (ApplicationStatus, bool) {
	normalized := strings.TrimSpace(raw)
	if strings.EqualFold(normalized, "En revisión") {
		return StatusInReview, true
	}
	status := ApplicationStatus(normalized)
	return status, status.IsValid()
}

// Application is one candidate's pipeline state for one job
type Application struct {
	ApplicationID  uuid.UUID         `json:"application_id"`
	JobID          uuid.UUID         `json:"job_id"`
	CandidateID    uuid.UUID         `json:"candidato_id"`
	Status         ApplicationStatus `json:"estado"`
	Source         *string           `json:"source"`
	SourceDetails  json.RawMessage   `json:"source_details"`
	ExpectedSalary *float64          `json:"salario_expectativa"`
	Currency       *string           `json:"moneda"`
	AppliedAt      time.Time         `json:"applied_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ApplicationUpsert carries everything the ledger needs to create or refresh an application
type ApplicationUpsert struct {
	JobID          uuid.UUID
	Candidate      CandidateInput
	Status         ApplicationStatus
	Source         *string
	SourceDetails  json.RawMessage
	ExpectedSalary *float64
	Currency       *string
	ChangedBy      *uuid.UUID
	HistoryComment *string
}

// ApplicationUpsertResult reports what the ledger did
type ApplicationUpsertResult struct {
	Application    Application        `json:"application"`
	WasExisting    bool               `json:"was_existing"`
	PreviousStatus *ApplicationStatus `json:"previous_status"`
}

// ApplicationListItem is an application joined with its candidate for job listings
type ApplicationListItem struct {
	Application
	FullName        string  `json:"nombre_completo"`
	Email           string  `json:"email"`
	Phone           *string `json:"telefono"`
	ResumeURL       *string `json:"resumen_url"`
	LinkedInURL     *string `json:"linkedin_url"`
	City            *string `json:"ciudad"`
	Country         *string `json:"pais"`
	CandidateSource *string `json:"fuente"`
	JobTitle        string  `json:"titulo"`
}

// StageHistoryEntry is one append-only status transition
type StageHistoryEntry struct {
	StageHistoryID uuid.UUID          `json:"stage_history_id"`
	ApplicationID  uuid.UUID          `json:"application_id"`
	PreviousStatus *ApplicationStatus `json:"estado_anterior"`
	NewStatus      ApplicationStatus  `json:"estado_nuevo"`
	Comment        *string            `json:"comentario"`
	ChangedBy      *uuid.UUID         `json:"cambiado_por"`
	ChangedByName  *string            `json:"cambiado_por_nombre"`
	ChangedByEmail *string            `json:"cambiado_por_email"`
	ChangedAt      time.Time          `json:"changed_at"`
}

// ApplicationNote is a free-text note attached to an application
type ApplicationNote struct {
	NoteID        uuid.UUID  `json:"note_id"`
	ApplicationID uuid.UUID  `json:"application_id"`
	AuthorID      *uuid.UUID `json:"autor_id"`
	AuthorName    *string    `json:"autor_nombre,omitempty"`
	AuthorEmail   *string    `json:"autor_email,omitempty"`
	Content       string     `json:"contenido"`
	Category      *string    `json:"categoria"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
