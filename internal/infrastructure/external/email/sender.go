package email

import (
	"context"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/garyjia/store-approval/internal/application/port"
)

// Config holds SMTP settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string

	// Domain turns an actor id into an address (actor@Domain) when the id is not one already
	Domain string
}

// dialer is satisfied by *gomail.Dialer
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Sender delivers notifications by SMTP
type Sender struct {
	cfg    Config
	dialer dialer
	logger *zap.Logger
}

// NewSender creates an SMTP sender
func NewSender(cfg Config, logger *zap.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}
}

func (s *Sender) Name() string {
	return "email"
}

// Address maps an actor id to a mail address
func (s *Sender) Address(actor string) (string, error) {
	if strings.Contains(actor, "@") {
		return actor, nil
	}
	if s.cfg.Domain == "" {
		return "", fmt.Errorf("no mail address for %s", actor)
	}
	return actor + "@" + s.cfg.Domain, nil
}

func (s *Sender) Send(ctx context.Context, msg port.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to, err := s.Address(msg.Recipient)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	if s.cfg.FromName != "" {
		m.SetAddressHeader("From", s.cfg.From, s.cfg.FromName)
	} else {
		m.SetHeader("From", s.cfg.From)
	}
	m.SetHeader("To", to)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	m.AddAlternative("text/html", "<pre>"+html.EscapeString(msg.Body)+"</pre>")

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("Failed to send email", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	s.logger.Info("Email sent", zap.String("to", to), zap.String("subject", msg.Subject))
	return nil
}

var _ port.MessageSender = (*Sender)(nil)
