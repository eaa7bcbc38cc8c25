package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Server:   "smtp.example.com",
		Port:     "587",
		User:     "bot",
		Pass:     "secret",
		FromAddr: "bot@example.com",
		FromName: "QRIS Tracker",
		AlertTo:  "ops@example.com, owner@example.com",
	}
}

func TestAlert(t *testing.T) {
	m := NewMailer(testConfig())
	var gotAddr string
	var gotTo []string
	var gotMsg string
	m.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	if err := m.Alert(context.Background(), "Tokopedia session expired", "upload fresh cookies"); err != nil {
		t.Fatal(err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if len(gotTo) != 2 || gotTo[0] != "ops@example.com" || gotTo[1] != "owner@example.com" {
		t.Errorf("to = %v", gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: [QRIS] Tokopedia session expired\r\n") {
		t.Errorf("missing subject in %q", gotMsg)
	}
	if !strings.HasSuffix(gotMsg, "\r\n\r\nupload fresh cookies") {
		t.Errorf("missing body in %q", gotMsg)
	}
}

func TestAlertWithoutRecipientIsNoop(t *testing.T) {
	cfg := testConfig()
	cfg.AlertTo = ""
	m := NewMailer(cfg)
	m.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Error("unexpected send")
		return nil
	}
	if err := m.Alert(context.Background(), "s", "b"); err != nil {
		t.Error(err)
	}
	if m.Enabled() {
		t.Error("expected alerts to be disabled")
	}
}

func TestSendEmailNotConfigured(t *testing.T) {
	m := NewMailer(Config{AlertTo: "ops@example.com"})
	if err := m.Alert(context.Background(), "s", "b"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestSendEmailWrapsError(t *testing.T) {
	m := NewMailer(testConfig())
	boom := errors.New("421 service not available")
	m.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return boom }
	if err := m.SendEmail([]string{"ops@example.com"}, "s", "b"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped send error", err)
	}
}
