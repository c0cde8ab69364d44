package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

func sampleNotice() PublicApplicationNotice {
	return PublicApplicationNotice{
		To:             []string{"rh@acme.com", "admin@acme.com"},
		JobTitle:       "Backend Engineer",
		CompanyName:    "Acme",
		CandidateName:  "Ana Pérez",
		CandidateEmail: "ana@example.com",
		CandidatePhone: strPtr("+52 55 1234 5678"),
		Message:        strPtr("Me interesa"),
		JobURL:         "https://portal.example.com/portal/vacantes",
	}
}

func TestPublicApplicationNotice_Body(t *testing.T) {
	body := sampleNotice().Body()

	assert.Contains(t, body, `"Backend Engineer"`)
	assert.Contains(t, body, "Candidato: Ana Pérez <ana@example.com>")
	assert.Contains(t, body, "Teléfono: +52 55 1234 5678")
	assert.Contains(t, body, "Revisar vacante: https://portal.example.com/portal/vacantes")
	assert.True(t, strings.HasSuffix(body, "Mensaje del candidato:\nMe interesa"))

	minimal := PublicApplicationNotice{JobTitle: "QA", CandidateName: "Luis", CandidateEmail: "luis@example.com"}
	assert.NotContains(t, minimal.Body(), "Teléfono")
	assert.NotContains(t, minimal.Body(), "Mensaje")
	assert.Equal(t, "Nueva postulación - QA", minimal.Subject())
}

func TestSMTPNotifier_Sends(t *testing.T) {
	notifier := NewSMTPNotifier("smtp.example.com", 587, "user", "pass", "no-reply@example.com")

	var sent *mail.Msg
	var hasDeadline bool
	notifier.send = func(ctx context.Context, msg *mail.Msg) error {
		sent = msg
		_, hasDeadline = ctx.Deadline()
		return nil
	}

	result, err := notifier.NotifyPublicApplication(context.Background(), sampleNotice())

	require.NoError(t, err)
	assert.Equal(t, DeliveryResult{Attempted: true, Success: true, Message: "sent"}, result)
	assert.True(t, hasDeadline)
	require.NotNil(t, sent)

	recipients, err := sent.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"rh@acme.com", "admin@acme.com"}, recipients)
	assert.Equal(t, []string{"Nueva postulación - Backend Engineer"}, sent.GetGenHeader(mail.HeaderSubject))

	var rendered bytes.Buffer
	_, err = sent.WriteTo(&rendered)
	require.NoError(t, err)
	assert.Contains(t, rendered.String(), "no-reply@example.com")
	assert.Contains(t, rendered.String(), "text/plain")
}

func TestSMTPNotifier_NoRecipients(t *testing.T) {
	notifier := NewSMTPNotifier("smtp.example.com", 25, "", "", "no-reply@example.com")
	notifier.send = func(context.Context, *mail.Msg) error {
		t.Fatal("send must not be called")
		return nil
	}

	notice := sampleNotice()
	notice.To = nil
	result, err := notifier.NotifyPublicApplication(context.Background(), notice)

	require.NoError(t, err)
	assert.False(t, result.Attempted)
}

func TestSMTPNotifier_ClientOptions(t *testing.T) {
	anonymous := NewSMTPNotifier("smtp.example.com", 25, "", "", "no-reply@example.com")
	authenticated := NewSMTPNotifier("smtp.example.com", 587, "user", "pass", "no-reply@example.com")

	assert.Len(t, anonymous.clientOptions(), 3)
	assert.Len(t, authenticated.clientOptions(), 6)

	_, err := mail.NewClient(authenticated.Host, authenticated.clientOptions()...)
	require.NoError(t, err)
}

func TestSMTPNotifier_Failures(t *testing.T) {
	t.Run("relay error", func(t *testing.T) {
		notifier := NewSMTPNotifier("smtp.example.com", 25, "", "", "no-reply@example.com")
		notifier.send = func(context.Context, *mail.Msg) error {
			return errors.New("550 mailbox unavailable")
		}

		result, err := notifier.NotifyPublicApplication(context.Background(), sampleNotice())

		require.Error(t, err)
		assert.True(t, result.Attempted)
		assert.False(t, result.Success)
		assert.Equal(t, "550 mailbox unavailable", result.Message)
	})

	t.Run("invalid recipient", func(t *testing.T) {
		notifier := NewSMTPNotifier("smtp.example.com", 25, "", "", "no-reply@example.com")
		notifier.send = func(context.Context, *mail.Msg) error {
			t.Fatal("send must not be called")
			return nil
		}

		notice := sampleNotice()
		notice.To = []string{"not an address"}
		result, err := notifier.NotifyPublicApplication(context.Background(), notice)

		require.Error(t, err)
		assert.False(t, result.Attempted)
	})

	t.Run("invalid port", func(t *testing.T) {
		notifier := NewSMTPNotifier("smtp.example.com", 70000, "", "", "no-reply@example.com")

		result, err := notifier.NotifyPublicApplication(context.Background(), sampleNotice())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "smtp client")
		assert.True(t, result.Attempted)
	})

	t.Run("timeout", func(t *testing.T) {
		notifier := NewSMTPNotifier("smtp.example.com", 25, "", "", "no-reply@example.com")
		notifier.Timeout = 20 * time.Millisecond
		notifier.send = func(ctx context.Context, _ *mail.Msg) error {
			<-ctx.Done()
			return ctx.Err()
		}

		_, err := notifier.NotifyPublicApplication(context.Background(), sampleNotice())

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("context cancelled", func(t *testing.T) {
		notifier := NewSMTPNotifier("smtp.example.com", 25, "", "", "no-reply@example.com")
		notifier.send = func(ctx context.Context, _ *mail.Msg) error {
			<-ctx.Done()
			return ctx.Err()
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := notifier.NotifyPublicApplication(ctx, sampleNotice())

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLogNotifier(t *testing.T) {
	result, err := LogNotifier{}.NotifyPublicApplication(context.Background(), sampleNotice())

	require.NoError(t, err)
	assert.False(t, result.Attempted)
	assert.Equal(t, "smtp not configured", result.Message)
}
