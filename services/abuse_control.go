package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/shared"
)

const unknownIP = "unknown"

var (
	ErrCaptchaNotConfigured = shared.NewServiceError(shared.ErrorCategoryConfiguration, "CAPTCHA_NOT_CONFIGURED",
		"captcha is required but no secret is configured", "AbuseControl", "VerifyCaptcha", false, nil)
	ErrCaptchaRequired = shared.NewServiceError(shared.ErrorCategoryValidation, "CAPTCHA_REQUIRED",
		"captcha token is required", "AbuseControl", "VerifyCaptcha", false, nil)
	ErrCaptchaRejected = shared.NewServiceError(shared.ErrorCategoryValidation, "CAPTCHA_FAILED",
		"captcha could not be validated", "AbuseControl", "VerifyCaptcha", false, nil)
)

// CaptchaCheck is the outcome of the captcha gate
type CaptchaCheck struct {
	Passed bool
	Score  *float64
	// Reason is recorded in the attempt log when the check fails
	Reason string
}

// AbuseControl applies the rate limit and captcha gates ahead of any database write
type AbuseControl struct {
	limiter         shared.RateLimiter
	verifier        CaptchaVerifier
	captchaRequired bool
	secretSet       bool
	minScore        float64
}

func NewAbuseControl(limiter shared.RateLimiter, verifier CaptchaVerifier, cfg shared.IntakeConfig) *AbuseControl {
	return &AbuseControl{
		limiter:         limiter,
		verifier:        verifier,
		captchaRequired: cfg.CaptchaRequired,
		secretSet:       cfg.CaptchaSecret != "",
		minScore:        cfg.CaptchaMinScore,
	}
}

// CheckRateLimit returns shared.ErrRateLimited once ip exhausted its window
func (a *AbuseControl) CheckRateLimit(ctx context.Context, ip string) error {
	if ip == "" {
		ip = unknownIP
	}

	decision, err := a.limiter.Check(ctx, ip)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		logrus.WithFields(logrus.Fields{
			"component": "AbuseControl",
			"ip":        ip,
			"count":     decision.Count,
			"reset_at":  decision.ResetAt,
		}).Info("Public application rate limited")
		return shared.ErrRateLimited
	}
	return nil
}

// VerifyCaptcha runs the captcha gate. A failed check is reported through
// CaptchaCheck together with ErrCaptchaRequired or ErrCaptchaRejected;
// configuration and provider problems are returned as other errors.
func (a *AbuseControl) VerifyCaptcha(ctx context.Context, token *string, ip string) (CaptchaCheck, error) {
	if !a.captchaRequired {
		return CaptchaCheck{Passed: true}, nil
	}

	if token == nil || strings.TrimSpace(*token) == "" {
		return CaptchaCheck{Reason: "missing_token"}, ErrCaptchaRequired
	}

	if !a.secretSet || a.verifier == nil {
		logrus.WithField("component", "AbuseControl").Error("RECAPTCHA_SECRET_KEY is not configured")
		return CaptchaCheck{Reason: "captcha_not_configured"}, ErrCaptchaNotConfigured
	}

	result, err := a.verifier.Verify(ctx, strings.TrimSpace(*token), ip)
	if err != nil {
		return CaptchaCheck{Reason: err.Error()}, err
	}

	check := CaptchaCheck{Score: result.Score}
	switch {
	case !result.Success:
		check.Reason = "verification_failed"
		if len(result.ErrorCodes) > 0 {
			check.Reason = strings.Join(result.ErrorCodes, ",")
		}
		return check, ErrCaptchaRejected
	case result.Score != nil && *result.Score < a.minScore:
		check.Reason = "low_score_" + strconv.FormatFloat(*result.Score, 'f', -1, 64)
		return check, ErrCaptchaRejected
	}

	check.Passed = true
	return check, nil
}

// IsCaptchaRejection reports whether err is a client side captcha failure
func IsCaptchaRejection(err error) bool {
	return errors.Is(err, ErrCaptchaRequired) || errors.Is(err, ErrCaptchaRejected)
}
