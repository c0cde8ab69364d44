package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus is the outcome recorded for a public submission
type AttemptStatus string

const (
	AttemptReceived      AttemptStatus = "received"
	AttemptDuplicate     AttemptStatus = "duplicate"
	AttemptRateLimited   AttemptStatus = "rate_limited"
	AttemptCaptchaFailed AttemptStatus = "captcha_failed"
	AttemptJobClosed     AttemptStatus = "job_closed"
	AttemptInvalid       AttemptStatus = "invalid"
	AttemptError         AttemptStatus = "error"
)

// AttemptStatuses lists every attempt outcome
var AttemptStatuses = []AttemptStatus{
	AttemptReceived,
	AttemptDuplicate,
	AttemptRateLimited,
	AttemptCaptchaFailed,
	AttemptJobClosed,
	AttemptInvalid,
	AttemptError,
}

func (s AttemptStatus) IsValid() bool {
	for _, status := range AttemptStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// SourceDetails is the attribution payload stored with applications and attempts
type SourceDetails struct {
	Channel   string  `json:"channel,omitempty"`
	Campaign  string  `json:"campaign,omitempty"`
	IP        *string `json:"ip"`
	UserAgent *string `json:"userAgent"`
}

// JSON encodes the details. Encoding a plain struct of strings cannot fail.
func (d SourceDetails) JSON() json.RawMessage {
	encoded, _ := json.Marshal(d)
	return encoded
}

// PublicAttempt is one row of the append-only public submission log
type PublicAttempt struct {
	LogID          int64           `json:"log_id,omitempty"`
	JobID          *uuid.UUID      `json:"job_id"`
	CandidateEmail string          `json:"candidate_email"`
	Status         AttemptStatus   `json:"status"`
	ErrorMessage   *string         `json:"error_message"`
	IP             *string         `json:"ip"`
	UserAgent      *string         `json:"user_agent"`
	CaptchaScore   *float64        `json:"recaptcha_score"`
	Source         *string         `json:"source"`
	SourceDetails  json.RawMessage `json:"source_details"`
	CreatedAt      time.Time       `json:"created_at"`
}
