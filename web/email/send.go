package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("smtp not configured")

type Config struct {
	Server   string
	Port     string
	User     string
	Pass     string
	FromAddr string
	FromName string
	AlertTo  string // operator address for alerts, comma separated
}

func (c Config) configured() bool {
	return c.Server != "" && c.Port != "" && c.User != "" && c.Pass != "" && c.FromAddr != ""
}

type Mailer struct {
	cfg      Config
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg Config) *Mailer {
	return &Mailer{cfg: cfg, sendMail: smtp.SendMail}
}

// Enabled reports whether alerts will actually be delivered.
func (m *Mailer) Enabled() bool {
	return m.cfg.configured() && m.cfg.AlertTo != ""
}

func (m *Mailer) SendEmail(to []string, subject string, body string) error {
	if !m.cfg.configured() {
		return ErrNotConfigured
	}
	msg := []byte(fmt.Sprintf("From: %s <%s>\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n\r\n"+
		"%s",
		m.cfg.FromName, m.cfg.FromAddr, strings.Join(to, ", "), subject, body))

	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Server)

	err := m.sendMail(m.cfg.Server+":"+m.cfg.Port, auth, m.cfg.FromAddr, to, msg)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// Alert mails the operator. It does nothing when no operator address is set.
func (m *Mailer) Alert(ctx context.Context, subject, body string) error {
	if m.cfg.AlertTo == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var to []string
	for _, addr := range strings.Split(m.cfg.AlertTo, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return m.SendEmail(to, "[QRIS] "+subject, body)
}
