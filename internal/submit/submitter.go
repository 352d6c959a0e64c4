// Package submit builds, sends and classifies create/update calls for the
// portfolio record. At most one submission is in flight per Submitter.
package submit

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/ldcasilang/sui-portfolio/internal/cache"
	"github.com/ldcasilang/sui-portfolio/internal/chain"
	"github.com/ldcasilang/sui-portfolio/internal/notify"
	"github.com/ldcasilang/sui-portfolio/internal/portfolio"
	"go.uber.org/zap"
)

// Remote executes a signed Move call.
type Remote interface {
	SubmitMutation(ctx context.Context, call chain.MoveCall) (chain.MutationResult, error)
}

// Action says which entry point a submission used.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Config names the entry points.
type Config struct {
	PackageID      string
	Module         string
	CreateFunction string
	UpdateFunction string
	ExplorerURL    string
}

func (c Config) withDefaults() Config {
	if c.Module == "" {
		c.Module = "portfolio"
	}
	if c.CreateFunction == "" {
		c.CreateFunction = "create"
	}
	if c.UpdateFunction == "" {
		c.UpdateFunction = "update"
	}
	return c
}

// Outcome is a successful submission.
type Outcome struct {
	TxRef     string
	Action    Action
	CreatedID string
	// Fields is the record data emitted inline by the call, if any.
	Fields *portfolio.Record
}

// Submitter sends portfolio mutations.
type Submitter struct {
	remote   Remote
	cache    cache.Store
	notifier notify.Sink
	cfg      Config
	logger   *zap.Logger
	busy     atomic.Bool
}

// New creates a submitter. store and notifier may be nil.
func New(remote Remote, store cache.Store, notifier notify.Sink, cfg Config, logger *zap.Logger) *Submitter {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		remote:   remote,
		cache:    store,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// InFlight reports whether a submission is running.
func (s *Submitter) InFlight() bool {
	return s.busy.Load()
}

// Submit validates draft and sends a create (identifier empty) or update
// call. Validation failures return before any network I/O or busy check.
// A concurrent call returns ErrBusy without notifying. Every other failure
// is classified, notified once and returned as *Error.
func (s *Submitter) Submit(ctx context.Context, draft portfolio.Record, identifier string) (Outcome, error) {
	if err := draft.Validate(); err != nil {
		verr := validationError(err)
		s.notifier.Notify(notify.KindError, verr.Message, true)
		return Outcome{}, verr
	}
	if !s.busy.CompareAndSwap(false, true) {
		return Outcome{}, ErrBusy
	}
	defer s.busy.Store(false)

	call, action := s.buildCall(draft, identifier)
	s.notifier.Notify(notify.KindWaiting, "Waiting for signature", false)
	s.logger.Info("submitting portfolio",
		zap.String("action", string(action)),
		zap.String("target", call.Target()),
		zap.String("object_id", identifier))

	res, err := s.remote.SubmitMutation(ctx, call)
	if err != nil {
		return Outcome{}, s.fail(err.Error(), err)
	}
	if raw := executionFailure(res); raw != "" {
		return Outcome{}, s.fail(raw, nil)
	}
	if res.Digest == "" {
		return Outcome{}, s.fail("Transaction failed - no digest returned", nil)
	}

	out := Outcome{TxRef: res.Digest, Action: action}
	if action == ActionCreate {
		out.CreatedID = createdID(res)
	}
	if fields, ok := inlineFields(res, draft); ok {
		out.Fields = &fields
	}

	s.persist(ctx, cache.KeyLastTx, out.TxRef)
	if out.CreatedID != "" {
		s.persist(ctx, cache.KeyRecordID, out.CreatedID)
	}

	s.notifier.Notify(notify.KindSuccess, s.successMessage(out.TxRef), true)
	s.logger.Info("portfolio saved",
		zap.String("action", string(action)),
		zap.String("digest", out.TxRef),
		zap.String("created_id", out.CreatedID))
	return out, nil
}

// BuildCall exposes payload construction for dry runs.
func (s *Submitter) BuildCall(draft portfolio.Record, identifier string) chain.MoveCall {
	call, _ := s.buildCall(draft, identifier)
	return call
}

func (s *Submitter) buildCall(draft portfolio.Record, identifier string) (chain.MoveCall, Action) {
	skills := make([]string, len(draft.Skills))
	copy(skills, draft.Skills)
	args := []any{
		draft.Name,
		draft.Course,
		draft.School,
		draft.About,
		draft.LinkedInURL,
		draft.GitHubURL,
		skills,
	}
	call := chain.MoveCall{Package: s.cfg.PackageID, Module: s.cfg.Module}
	if identifier == "" {
		call.Function = s.cfg.CreateFunction
		call.Arguments = args
		return call, ActionCreate
	}
	call.Function = s.cfg.UpdateFunction
	call.Arguments = append([]any{identifier}, args...)
	return call, ActionUpdate
}

func (s *Submitter) fail(raw string, cause error) *Error {
	e := classifyFailure(raw, cause)
	s.logger.Warn("portfolio submission failed",
		zap.String("kind", string(e.Kind)),
		zap.String("raw", raw))
	s.notifier.Notify(notify.KindError, e.Message, true)
	return e
}

func (s *Submitter) persist(ctx context.Context, key, value string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.logger.Warn("persist submission result failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Submitter) successMessage(digest string) string {
	msg := "Portfolio saved. Transaction " + ShortDigest(digest)
	if s.cfg.ExplorerURL != "" {
		msg += " " + ExplorerLink(s.cfg.ExplorerURL, digest)
	}
	return msg
}

// ShortDigest renders a digest as its first 12 and last 8 characters.
func ShortDigest(digest string) string {
	if len(digest) <= 20 {
		return digest
	}
	return digest[:12] + "..." + digest[len(digest)-8:]
}

// ExplorerLink joins an explorer base URL and a digest.
func ExplorerLink(base, digest string) string {
	if base == "" || digest == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + digest
}

func validationError(err error) *Error {
	var verr *portfolio.ValidationError
	msg := err.Error()
	if errors.As(err, &verr) && len(verr.Problems) > 0 {
		msg = strings.Join(verr.Problems, "; ")
	}
	return &Error{Kind: KindValidation, Message: msg, Raw: err.Error(), Err: err}
}
