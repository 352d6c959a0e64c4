// Package app exposes the portfolio over HTTP: a public read view and a
// password-gated edit view backed by the sync engine.
package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ldcasilang/sui-portfolio/internal/auth"
	"github.com/ldcasilang/sui-portfolio/internal/authpw"
	"github.com/ldcasilang/sui-portfolio/internal/export"
	"github.com/ldcasilang/sui-portfolio/internal/notify"
	"github.com/ldcasilang/sui-portfolio/internal/portfolio"
	"github.com/ldcasilang/sui-portfolio/internal/rbac"
	"github.com/ldcasilang/sui-portfolio/internal/store"
	"github.com/ldcasilang/sui-portfolio/internal/submit"
	"github.com/ldcasilang/sui-portfolio/internal/syncer"
)

// Engine is the part of the sync engine the HTTP layer drives.
type Engine interface {
	Status() syncer.Status
	Reconcile(ctx context.Context) bool
	ApplyLocalDraft(patch portfolio.Patch) portfolio.Record
	Draft() (portfolio.Record, bool)
	DiscardDraft()
	Save(ctx context.Context) (submit.Outcome, error)
	ClearIdentifier(ctx context.Context) error
}

// Ledger records successful submissions. It is optional.
type Ledger interface {
	InsertTransaction(ctx context.Context, tx store.Transaction) (store.Transaction, error)
	ListTransactions(ctx context.Context, limit int) ([]store.Transaction, error)
	Ping(ctx context.Context) error
}

type Exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the service.
type Options struct {
	TokenSecret string
	AccessTTL   time.Duration
}

// Deps are the collaborators of the service. Ledger and Exporter may be nil.
type Deps struct {
	Engine   Engine
	Cache    pinger
	Ledger   Ledger
	Hub      *notify.Hub
	Exporter Exporter
	Gate     *authpw.Gate
}

type Session struct {
	Token     string
	Role      rbac.Role
	JTI       string
	ExpiresAt time.Time
}

type Service struct {
	opts     Options
	engine   Engine
	cache    pinger
	ledger   Ledger
	hub      *notify.Hub
	exporter Exporter
	gate     *authpw.Gate
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

func New(opts Options, deps Deps, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 12 * time.Hour
	}
	if deps.Hub == nil {
		deps.Hub = notify.NewHub(0)
	}
	if deps.Gate == nil {
		deps.Gate, _ = authpw.NewGate("", "")
	}
	return &Service{
		opts:     opts,
		engine:   deps.Engine,
		cache:    deps.Cache,
		ledger:   deps.Ledger,
		hub:      deps.Hub,
		exporter: deps.Exporter,
		gate:     deps.Gate,
		logger:   logger,
		now:      time.Now,
		revoked:  make(map[string]time.Time),
	}
}

// Portfolio is the public view.
func (s *Service) Portfolio() syncer.Status {
	return s.engine.Status()
}

// Login trades the admin password for a bearer token.
func (s *Service) Login(password string) (Session, error) {
	if err := s.gate.Verify(password); err != nil {
		if errors.Is(err, authpw.ErrNotConfigured) {
			return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Admin login is not configured", nil)
		}
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid password", nil)
	}
	claims := auth.NewSession("admin", string(rbac.RoleAdmin), s.opts.AccessTTL, s.now())
	token, err := auth.IssueToken([]byte(s.opts.TokenSecret), claims)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("admin signed in", zap.String("jti", claims.JTI))
	return Session{Token: token, Role: rbac.RoleAdmin, JTI: claims.JTI, ExpiresAt: claims.ExpiresAt()}, nil
}

// Logout revokes the session's token id until it would have expired.
func (s *Service) Logout(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[session.JTI] = session.ExpiresAt
	now := s.now()
	for jti, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, jti)
		}
	}
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.opts.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	_, revoked := s.revoked[claims.JTI]
	s.mu.Unlock()
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:     token,
		Role:      rbac.Normalize(claims.Role),
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

// DraftView is the edit form's state.
type DraftView struct {
	Record   portfolio.Record `json:"record"`
	HasDraft bool             `json:"has_draft"`
}

func (s *Service) Draft() DraftView {
	record, ok := s.engine.Draft()
	return DraftView{Record: record, HasDraft: ok}
}

func (s *Service) UpdateDraft(patch portfolio.Patch) (DraftView, error) {
	if patch.Empty() {
		return DraftView{}, domainError(http.StatusBadRequest, "EMPTY_PATCH", "No fields to update", nil)
	}
	return DraftView{Record: s.engine.ApplyLocalDraft(patch), HasDraft: true}, nil
}

func (s *Service) DiscardDraft() DraftView {
	s.engine.DiscardDraft()
	return s.Draft()
}

// SaveResult is returned after a successful submission.
type SaveResult struct {
	Transaction syncer.Transaction `json:"transaction"`
	Action      submit.Action      `json:"action"`
	CreatedID   string             `json:"created_id,omitempty"`
	Status      syncer.Status      `json:"status"`
}

// Save submits the draft and appends the result to the ledger.
func (s *Service) Save(ctx context.Context) (SaveResult, error) {
	out, err := s.engine.Save(ctx)
	if err != nil {
		return SaveResult{}, err
	}
	status := s.engine.Status()
	result := SaveResult{
		Action:    out.Action,
		CreatedID: out.CreatedID,
		Status:    status,
	}
	if status.Transaction != nil && status.Transaction.Digest == out.TxRef {
		result.Transaction = *status.Transaction
	} else {
		result.Transaction = syncer.Transaction{Digest: out.TxRef, Short: submit.ShortDigest(out.TxRef)}
	}
	s.record(ctx, out, status)
	return result, nil
}

func (s *Service) record(ctx context.Context, out submit.Outcome, status syncer.Status) {
	if s.ledger == nil {
		return
	}
	recordID := out.CreatedID
	if recordID == "" {
		recordID = status.Identifier
	}
	_, err := s.ledger.InsertTransaction(ctx, store.Transaction{
		Digest:   out.TxRef,
		Action:   string(out.Action),
		RecordID: recordID,
		Snapshot: status.Record,
	})
	if err != nil && !errors.Is(err, store.ErrDuplicateTransaction) {
		s.logger.Warn("ledger insert failed", zap.String("digest", out.TxRef), zap.Error(err))
	}
}

// Reconcile runs one reconciliation and reports whether it ran or was
// coalesced into one already in flight.
func (s *Service) Reconcile(ctx context.Context) (bool, syncer.Status) {
	ran := s.engine.Reconcile(ctx)
	return ran, s.engine.Status()
}

func (s *Service) ClearIdentifier(ctx context.Context) error {
	return s.engine.ClearIdentifier(ctx)
}

func (s *Service) Transactions(ctx context.Context, limit int) ([]store.Transaction, error) {
	if s.ledger == nil {
		return nil, domainError(http.StatusServiceUnavailable, "LEDGER_DISABLED", "Transaction ledger is not configured", nil)
	}
	return s.ledger.ListTransactions(ctx, limit)
}

func (s *Service) Notifications() []notify.Notification {
	return s.hub.List()
}

func (s *Service) DismissNotification(id string) error {
	if !s.hub.Dismiss(id) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Notification not found", nil)
	}
	return nil
}

// Export renders the confirmed record.
func (s *Service) Export(ctx context.Context, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, export.ErrPDFDependencyMissing
	}
	status := s.engine.Status()
	req := export.Request{
		Record:     status.Record,
		Identifier: status.Identifier,
		Format:     format,
	}
	if status.Transaction != nil {
		req.TxShort = status.Transaction.Short
		req.TxURL = status.Transaction.ExplorerURL
	}
	return s.exporter.Export(ctx, req)
}

// Ready pings the cache and, when configured, the ledger.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ready := true
	checks := map[string]any{}
	check := func(name string, p pinger) {
		if p == nil {
			checks[name] = map[string]any{"status": "disabled"}
			return
		}
		if err := p.Ping(ctx); err != nil {
			ready = false
			checks[name] = map[string]any{"status": "error", "error": strings.TrimSpace(err.Error())}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	check("cache", s.cache)
	check("ledger", s.ledger)
	return ready, checks
}
