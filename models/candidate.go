package models

import (
	"time"

	"github.com/google/uuid"
)

// CandidateInput is a candidate profile as submitted. Nil fields keep the stored value.
type CandidateInput struct {
	FullName    string  `json:"nombre_completo"`
	Email       string  `json:"email"`
	Phone       *string `json:"telefono,omitempty"`
	ResumeURL   *string `json:"resumen_url,omitempty"`
	LinkedInURL *string `json:"linkedin_url,omitempty"`
	City        *string `json:"ciudad,omitempty"`
	Country     *string `json:"pais,omitempty"`
	Source      *string `json:"fuente,omitempty"`
}

type Candidate struct {
	CandidateID uuid.UUID `json:"candidato_id"`
	FullName    string    `json:"nombre_completo"`
	Email       string    `json:"email"`
	Phone       *string   `json:"telefono"`
	ResumeURL   *string   `json:"resumen_url"`
	LinkedInURL *string   `json:"linkedin_url"`
	City        *string   `json:"ciudad"`
	Country     *string   `json:"pais"`
	Source      *string   `json:"fuente"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
