// Package notify surfaces transient status messages about saves and sync
// to whoever is watching: the admin UI via Hub, the log, and optionally email.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind classifies a notification.
type Kind string

const (
	KindWaiting Kind = "waiting"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Notification is one surfaced message.
type Notification struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Message     string    `json:"message"`
	Dismissible bool      `json:"dismissible"`
	CreatedAt   time.Time `json:"created_at"`
}

// Sink accepts notifications. Implementations must not block for long.
type Sink interface {
	Notify(kind Kind, message string, dismissible bool)
}

// Discard drops every notification.
var Discard Sink = discard{}

type discard struct{}

func (discard) Notify(Kind, string, bool) {}

// Multi fans a notification out to several sinks in order.
type Multi []Sink

func (m Multi) Notify(kind Kind, message string, dismissible bool) {
	for _, s := range m {
		if s != nil {
			s.Notify(kind, message, dismissible)
		}
	}
}

// LogSink writes notifications to a zap logger.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Notify(kind Kind, message string, dismissible bool) {
	if s.Logger == nil {
		return
	}
	fields := []zap.Field{zap.String("kind", string(kind)), zap.String("message", message)}
	if kind == KindError {
		s.Logger.Warn("notification", fields...)
		return
	}
	s.Logger.Info("notification", fields...)
}

const defaultHubLimit = 20

// Hub keeps the most recent notifications for listing. A Success or Error
// replaces any pending Waiting notice.
type Hub struct {
	mu    sync.Mutex
	items []Notification
	limit int
	now   func() time.Time
}

// NewHub creates a hub holding at most limit notifications; limit <= 0
// uses the default.
func NewHub(limit int) *Hub {
	if limit <= 0 {
		limit = defaultHubLimit
	}
	return &Hub{limit: limit, now: time.Now}
}

func (h *Hub) Notify(kind Kind, message string, dismissible bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if kind == KindSuccess || kind == KindError {
		kept := h.items[:0]
		for _, n := range h.items {
			if n.Kind != KindWaiting {
				kept = append(kept, n)
			}
		}
		h.items = kept
	}

	h.items = append(h.items, Notification{
		ID:          uuid.NewString(),
		Kind:        kind,
		Message:     message,
		Dismissible: dismissible,
		CreatedAt:   h.now().UTC(),
	})
	if over := len(h.items) - h.limit; over > 0 {
		h.items = append([]Notification(nil), h.items[over:]...)
	}
}

// List returns the notifications, newest first.
func (h *Hub) List() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Notification, len(h.items))
	for i, n := range h.items {
		out[len(h.items)-1-i] = n
	}
	return out
}

// Dismiss removes a dismissible notification. It reports whether one was
// removed.
func (h *Hub) Dismiss(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, n := range h.items {
		if n.ID != id {
			continue
		}
		if !n.Dismissible {
			return false
		}
		h.items = append(h.items[:i], h.items[i+1:]...)
		return true
	}
	return false
}
