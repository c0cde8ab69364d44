package services

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/shared"
)

// CaptchaResponse is the siteverify reply
type CaptchaResponse struct {
	Success     bool     `json:"success"`
	Score       *float64 `json:"score"`
	Action      string   `json:"action"`
	Hostname    string   `json:"hostname"`
	ChallengeTS string   `json:"challenge_ts"`
	ErrorCodes  []string `json:"error-codes"`
}

// CaptchaVerifier checks a client token with the captcha provider
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (*CaptchaResponse, error)
}

// RecaptchaVerifier calls the reCAPTCHA siteverify API
type RecaptchaVerifier struct {
	client    *resty.Client
	secret    string
	verifyURL string
}

func NewRecaptchaVerifier(client *resty.Client, secret, verifyURL string) *RecaptchaVerifier {
	if client == nil {
		client = shared.NewHTTPClientFactory(10*time.Second).CreateRestyClient(10*time.Second, 1)
	}
	return &RecaptchaVerifier{
		client:    client,
		secret:    secret,
		verifyURL: verifyURL,
	}
}

// Configured reports whether a secret is set
func (v *RecaptchaVerifier) Configured() bool {
	return v.secret != ""
}

// Verify posts the token. Transport failures and non-2xx replies are errors.
func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (*CaptchaResponse, error) {
	form := map[string]string{
		"secret":   v.secret,
		"response": token,
	}
	if remoteIP != "" && remoteIP != unknownIP {
		form["remoteip"] = remoteIP
	}

	var result CaptchaResponse
	resp, err := v.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&result).
		Post(v.verifyURL)
	if err != nil {
		return nil, shared.NewServiceError(shared.ErrorCategoryNetwork, "CAPTCHA_UNAVAILABLE",
			"captcha verification request failed", "RecaptchaVerifier", "Verify", true, err)
	}
	if !resp.IsSuccess() {
		return nil, shared.NewServiceError(shared.ErrorCategoryNetwork, "CAPTCHA_UNAVAILABLE",
			"captcha verification returned "+resp.Status(), "RecaptchaVerifier", "Verify", true, nil).
			WithDetails(resp.StatusCode())
	}

	logrus.WithFields(logrus.Fields{
		"component": "RecaptchaVerifier",
		"success":   result.Success,
		"hostname":  result.Hostname,
		"action":    result.Action,
	}).Debug("Captcha verified")

	return &result, nil
}
