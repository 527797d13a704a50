package email

import (
	"context"
	"strings"
	"testing"
	"time"

	"appraisal/internal/platform/config"
)

func TestNewReturnsNoopWhenDisabled(t *testing.T) {
	mailer := New(config.Config{EmailEnabled: false, SMTPHost: "smtp.example.com"})
	if _, ok := mailer.(noopMailer); !ok {
		t.Fatalf("expected noop mailer, got %T", mailer)
	}
	if err := mailer.Send(context.Background(), "a@example.com", "b@example.com", "s", "b"); err != nil {
		t.Fatalf("noop send: %v", err)
	}
}

func TestBuildMessage(t *testing.T) {
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	msg := string(buildMessage("hr@example.com", "asha@example.com", "Appraisal\r\nBcc: x@evil", "Please review.", at))
	if !strings.Contains(msg, "Subject: Appraisal  Bcc: x@evil\r\n") {
		t.Fatalf("subject was not sanitised: %q", msg)
	}
	if !strings.Contains(msg, "Date: Wed, 01 Apr 2026 12:00:00 +0000") {
		t.Fatalf("missing date header: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nPlease review.") {
		t.Fatalf("body not separated from headers: %q", msg)
	}
}
