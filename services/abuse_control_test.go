package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentflow/ats-backend/shared"
)

type fakeVerifier struct {
	response *CaptchaResponse
	err      error
	calls    int
	token    string
	ip       string
}

func (f *fakeVerifier) Verify(_ context.Context, token, remoteIP string) (*CaptchaResponse, error) {
	f.calls++
	f.token = token
	f.ip = remoteIP
	return f.response, f.err
}

type fakeLimiter struct {
	decision shared.RateLimitDecision
	err      error
	keys     []string
}

func (f *fakeLimiter) Check(_ context.Context, key string) (shared.RateLimitDecision, error) {
	f.keys = append(f.keys, key)
	return f.decision, f.err
}

func scorePtr(v float64) *float64 { return &v }

func captchaConfig() shared.IntakeConfig {
	return shared.IntakeConfig{CaptchaRequired: true, CaptchaSecret: "secret", CaptchaMinScore: 0.5}
}

func TestAbuseControl_CheckRateLimit(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		limiter := &fakeLimiter{decision: shared.RateLimitDecision{Allowed: true, Count: 1}}
		abuse := NewAbuseControl(limiter, nil, captchaConfig())

		require.NoError(t, abuse.CheckRateLimit(context.Background(), "198.51.100.4"))
		assert.Equal(t, []string{"198.51.100.4"}, limiter.keys)
	})

	t.Run("refused", func(t *testing.T) {
		limiter := &fakeLimiter{decision: shared.RateLimitDecision{Count: 5, ResetAt: time.Now().Add(time.Minute)}}
		abuse := NewAbuseControl(limiter, nil, captchaConfig())

		err := abuse.CheckRateLimit(context.Background(), "")
		assert.ErrorIs(t, err, shared.ErrRateLimited)
		assert.Equal(t, http.StatusTooManyRequests, shared.HTTPStatus(err))
		assert.Equal(t, []string{unknownIP}, limiter.keys)
	})

	t.Run("store failure", func(t *testing.T) {
		storeErr := errors.New("redis down")
		abuse := NewAbuseControl(&fakeLimiter{err: storeErr}, nil, captchaConfig())

		err := abuse.CheckRateLimit(context.Background(), "1.1.1.1")
		assert.ErrorIs(t, err, storeErr)
		assert.NotErrorIs(t, err, shared.ErrRateLimited)
	})
}

func TestAbuseControl_VerifyCaptcha(t *testing.T) {
	token := "token-abc"
	blank := "   "

	tests := []struct {
		name      string
		cfg       shared.IntakeConfig
		verifier  *fakeVerifier
		token     *string
		passed    bool
		reason    string
		wantErr   error
		rejection bool
		calls     int
	}{
		{
			name:   "not required",
			cfg:    shared.IntakeConfig{CaptchaRequired: false},
			token:  nil,
			passed: true,
		},
		{
			name:      "missing token",
			cfg:       captchaConfig(),
			verifier:  &fakeVerifier{},
			token:     nil,
			reason:    "missing_token",
			wantErr:   ErrCaptchaRequired,
			rejection: true,
		},
		{
			name:      "blank token",
			cfg:       captchaConfig(),
			verifier:  &fakeVerifier{},
			token:     &blank,
			reason:    "missing_token",
			wantErr:   ErrCaptchaRequired,
			rejection: true,
		},
		{
			name:     "secret missing",
			cfg:      shared.IntakeConfig{CaptchaRequired: true, CaptchaMinScore: 0.5},
			verifier: &fakeVerifier{},
			token:    &token,
			reason:   "captcha_not_configured",
			wantErr:  ErrCaptchaNotConfigured,
		},
		{
			name:      "provider says no",
			cfg:       captchaConfig(),
			verifier:  &fakeVerifier{response: &CaptchaResponse{Success: false, ErrorCodes: []string{"invalid-input-response", "timeout-or-duplicate"}}},
			token:     &token,
			reason:    "invalid-input-response,timeout-or-duplicate",
			wantErr:   ErrCaptchaRejected,
			rejection: true,
			calls:     1,
		},
		{
			name:      "provider says no without codes",
			cfg:       captchaConfig(),
			verifier:  &fakeVerifier{response: &CaptchaResponse{Success: false}},
			token:     &token,
			reason:    "verification_failed",
			wantErr:   ErrCaptchaRejected,
			rejection: true,
			calls:     1,
		},
		{
			name:      "low score",
			cfg:       captchaConfig(),
			verifier:  &fakeVerifier{response: &CaptchaResponse{Success: true, Score: scorePtr(0.3)}},
			token:     &token,
			reason:    "low_score_0.3",
			wantErr:   ErrCaptchaRejected,
			rejection: true,
			calls:     1,
		},
		{
			name:     "score at threshold passes",
			cfg:      captchaConfig(),
			verifier: &fakeVerifier{response: &CaptchaResponse{Success: true, Score: scorePtr(0.5)}},
			token:    &token,
			passed:   true,
			calls:    1,
		},
		{
			name:     "no score passes",
			cfg:      captchaConfig(),
			verifier: &fakeVerifier{response: &CaptchaResponse{Success: true}},
			token:    &token,
			passed:   true,
			calls:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verifier CaptchaVerifier
			if tt.verifier != nil {
				verifier = tt.verifier
			}
			abuse := NewAbuseControl(&fakeLimiter{}, verifier, tt.cfg)

			check, err := abuse.VerifyCaptcha(context.Background(), tt.token, "203.0.113.1")

			assert.Equal(t, tt.passed, check.Passed)
			assert.Equal(t, tt.reason, check.Reason)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.rejection, IsCaptchaRejection(err))
			if tt.verifier != nil {
				assert.Equal(t, tt.calls, tt.verifier.calls)
			}
		})
	}
}

func TestAbuseControl_VerifyCaptchaProviderError(t *testing.T) {
	providerErr := shared.NewServiceError(shared.ErrorCategoryNetwork, "CAPTCHA_UNAVAILABLE", "down", "RecaptchaVerifier", "Verify", true, nil)
	verifier := &fakeVerifier{err: providerErr}
	abuse := NewAbuseControl(&fakeLimiter{}, verifier, captchaConfig())
	token := " padded "

	check, err := abuse.VerifyCaptcha(context.Background(), &token, "203.0.113.1")

	assert.ErrorIs(t, err, providerErr)
	assert.False(t, IsCaptchaRejection(err))
	assert.False(t, check.Passed)
	assert.Equal(t, providerErr.Error(), check.Reason)
	assert.Equal(t, "padded", verifier.token)
}

func TestAbuseControl_LowScoreKeepsScore(t *testing.T) {
	verifier := &fakeVerifier{response: &CaptchaResponse{Success: true, Score: scorePtr(0.1)}}
	abuse := NewAbuseControl(&fakeLimiter{}, verifier, captchaConfig())
	token := "t"

	check, _ := abuse.VerifyCaptcha(context.Background(), &token, "")

	require.NotNil(t, check.Score)
	assert.Equal(t, 0.1, *check.Score)
}
