package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

// PublicApplicationNotice summarizes a new public application for the hiring team
type PublicApplicationNotice struct {
	To             []string
	JobTitle       string
	CompanyName    string
	CandidateName  string
	CandidateEmail string
	CandidatePhone *string
	Message        *string
	JobURL         string
}

// DeliveryResult reports what a notifier did with a message
type DeliveryResult struct {
	Attempted bool   `json:"attempted"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

// Notifier delivers outbound notifications
type Notifier interface {
	NotifyPublicApplication(ctx context.Context, notice PublicApplicationNotice) (DeliveryResult, error)
}

// Subject returns the mail subject line
func (n PublicApplicationNotice) Subject() string {
	return "Nueva postulación - " + n.JobTitle
}

// Body renders the plain text mail body
func (n PublicApplicationNotice) Body() string {
	lines := []string{
		fmt.Sprintf("Se recibió una nueva postulación para %q.", n.JobTitle),
		"",
		fmt.Sprintf("Candidato: %s <%s>", n.CandidateName, n.CandidateEmail),
	}
	if n.CandidatePhone != nil && *n.CandidatePhone != "" {
		lines = append(lines, "Teléfono: "+*n.CandidatePhone)
	}
	if n.JobURL != "" {
		lines = append(lines, "", "Revisar vacante: "+n.JobURL)
	}
	if n.Message != nil && *n.Message != "" {
		lines = append(lines, "", "Mensaje del candidato:", *n.Message)
	}
	return strings.Join(lines, "\n")
}

// SMTPNotifier sends notifications through an SMTP relay
type SMTPNotifier struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	Timeout  time.Duration

	// send is dialAndSend outside tests
	send func(ctx context.Context, msg *mail.Msg) error
}

func NewSMTPNotifier(host string, port int, user, password, from string) *SMTPNotifier {
	n := &SMTPNotifier{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		From:     from,
		Timeout:  15 * time.Second,
	}
	n.send = n.dialAndSend
	return n
}

func (n *SMTPNotifier) NotifyPublicApplication(ctx context.Context, notice PublicApplicationNotice) (DeliveryResult, error) {
	if len(notice.To) == 0 {
		return DeliveryResult{Message: "no recipients"}, nil
	}

	logger := logrus.WithFields(logrus.Fields{
		"component":  "SMTPNotifier",
		"recipients": len(notice.To),
		"job_title":  notice.JobTitle,
	})

	msg, err := n.buildMessage(notice)
	if err != nil {
		logger.WithError(err).Error("Failed to build public application notification")
		return DeliveryResult{Message: err.Error()}, err
	}

	ctx, cancel := context.WithTimeout(ctx, n.Timeout)
	defer cancel()

	if err := n.send(ctx, msg); err != nil {
		logger.WithError(err).Error("Failed to send public application notification")
		return DeliveryResult{Attempted: true, Message: err.Error()}, err
	}

	logger.Info("Public application notification sent")
	return DeliveryResult{Attempted: true, Success: true, Message: "sent"}, nil
}

func (n *SMTPNotifier) buildMessage(notice PublicApplicationNotice) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", n.From, err)
	}
	if err := msg.To(notice.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(notice.Subject())
	msg.SetBodyString(mail.TypeTextPlain, notice.Body())
	return msg, nil
}

func (n *SMTPNotifier) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(n.Port),
		mail.WithTimeout(n.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if n.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.User),
			mail.WithPassword(n.Password),
		)
	}
	return opts
}

func (n *SMTPNotifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(n.Host, n.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// LogNotifier only logs notifications, used when SMTP is not configured
type LogNotifier struct{}

func (LogNotifier) NotifyPublicApplication(_ context.Context, notice PublicApplicationNotice) (DeliveryResult, error) {
	logrus.WithFields(logrus.Fields{
		"component": "LogNotifier",
		"to":        notice.To,
		"subject":   notice.Subject(),
		"body":      notice.Body(),
	}).Info("Public application notification (simulated)")
	return DeliveryResult{Message: "smtp not configured"}, nil
}
