package notify

import (
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHubDismissesWaitingOnOutcome(t *testing.T) {
	hub := NewHub(0)
	hub.Notify(KindInfo, "no existing record", true)
	hub.Notify(KindWaiting, "Saving...", false)

	if got := hub.List(); len(got) != 2 || got[0].Kind != KindWaiting {
		t.Fatalf("unexpected list before outcome: %+v", got)
	}

	hub.Notify(KindSuccess, "Saved", true)
	got := hub.List()
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].Kind != KindSuccess || got[1].Kind != KindInfo {
		t.Errorf("unexpected order: %+v", got)
	}
	for _, n := range got {
		if n.ID == "" || n.CreatedAt.IsZero() {
			t.Errorf("notification missing id or timestamp: %+v", n)
		}
	}
}

func TestHubLimit(t *testing.T) {
	hub := NewHub(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		hub.Notify(KindInfo, msg, true)
	}
	got := hub.List()
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if got[0].Message != "e" || got[2].Message != "c" {
		t.Errorf("expected newest first e..c, got %+v", got)
	}
}

func TestHubDismiss(t *testing.T) {
	hub := NewHub(0)
	hub.Notify(KindWaiting, "Saving...", false)
	hub.Notify(KindInfo, "hello", true)
	list := hub.List()

	if hub.Dismiss(list[1].ID) {
		t.Error("non-dismissible notification was dismissed")
	}
	if !hub.Dismiss(list[0].ID) {
		t.Error("dismissible notification was not dismissed")
	}
	if hub.Dismiss("missing") {
		t.Error("unknown id reported as dismissed")
	}
	if len(hub.List()) != 1 {
		t.Errorf("expected one notification left, got %d", len(hub.List()))
	}
}

type recordingSink struct {
	mu    sync.Mutex
	kinds []Kind
}

func (r *recordingSink) Notify(kind Kind, _ string, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	Multi{a, nil, b}.Notify(KindError, "boom", true)
	if len(a.kinds) != 1 || len(b.kinds) != 1 {
		t.Errorf("expected both sinks notified, got %v and %v", a.kinds, b.kinds)
	}
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := LogSink{Logger: zap.New(core)}
	sink.Notify(KindSuccess, "Saved", true)
	sink.Notify(KindError, "Transaction failed", true)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[1].Level != zap.WarnLevel {
		t.Errorf("errors should log at warn, got %s", entries[1].Level)
	}
}

func TestEmailConfigIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   EmailConfig
		expected bool
	}{
		{name: "empty config", config: EmailConfig{}, expected: false},
		{
			name:     "missing recipients",
			config:   EmailConfig{Host: "smtp.example.com", Port: "587", From: "a@example.com"},
			expected: false,
		},
		{
			name:     "fully configured",
			config:   EmailConfig{Host: "smtp.example.com", Port: "587", From: "a@example.com", To: []string{"me@example.com"}},
			expected: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.config.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", tt.config.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestEmailSinkSendsOutcomesOnly(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	sink := NewEmailSink(EmailConfig{
		Host:     "smtp.example.com",
		Port:     "587",
		From:     "portfolio@example.com",
		FromName: "Portfolio",
		To:       []string{"owner@example.com"},
	}, nil)
	sink.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		mu.Lock()
		defer mu.Unlock()
		if addr != "smtp.example.com:587" {
			return errors.New("wrong server " + addr)
		}
		sent = append(sent, string(msg))
		return nil
	}

	sink.Notify(KindWaiting, "Saving...", false)
	sink.Notify(KindInfo, "hello", true)
	sink.Notify(KindSuccess, "Saved <b>ok</b>", true)
	sink.Notify(KindError, "Transaction failed", true)
	sink.Close()
	sink.Notify(KindError, "after close", true)

	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(sent))
	}
	if !strings.Contains(sent[0], "Subject: Portfolio saved") {
		t.Errorf("unexpected first email: %s", sent[0])
	}
	if !strings.Contains(sent[0], "From: Portfolio <portfolio@example.com>") {
		t.Errorf("missing from header: %s", sent[0])
	}
	if strings.Contains(sent[0], "<b>ok</b>") {
		t.Error("message was not escaped")
	}
	if !strings.Contains(sent[1], "Subject: Portfolio save failed") {
		t.Errorf("unexpected second email: %s", sent[1])
	}
}
