package models

// PublicApplicationInput is the body of a public portal submission
type PublicApplicationInput struct {
	FullName       string   `json:"nombre_completo" validate:"min=3,max=160"`
	Email          string   `json:"email" validate:"required,max=200,email"`
	Phone          *string  `json:"telefono,omitempty" validate:"omitempty,max=60"`
	ResumeURL      *string  `json:"resumen_url,omitempty" validate:"omitempty,url"`
	LinkedInURL    *string  `json:"linkedin_url,omitempty" validate:"omitempty,url"`
	City           *string  `json:"ciudad,omitempty" validate:"omitempty,max=120"`
	Country        *string  `json:"pais,omitempty" validate:"omitempty,max=120"`
	Message        *string  `json:"mensaje,omitempty" validate:"omitempty,max=2000"`
	ExpectedSalary *float64 `json:"salario_expectativa,omitempty" validate:"omitempty,gte=0"`
	Currency       *string  `json:"moneda,omitempty" validate:"omitempty,len=3,alpha"`
	AcceptsPolicy  bool     `json:"acepta_politica" validate:"eq=true"`
	CaptchaToken   *string  `json:"recaptcha_token,omitempty" validate:"omitempty,min=10,max=200"`
	Campaign       *string  `json:"campaign,omitempty" validate:"omitempty,max=120"`
	Channel        *string  `json:"channel,omitempty" validate:"omitempty,max=120"`
}

// ClientInfo identifies the client that sent a public submission
type ClientInfo struct {
	IP        string
	UserAgent *string
}

// IntakeResult is returned for an accepted public submission
type IntakeResult struct {
	Status      AttemptStatus `json:"status"`
	Application Application   `json:"application"`
}
