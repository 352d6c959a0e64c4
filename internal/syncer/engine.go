// Package syncer keeps the in-memory portfolio record in step with its
// on-chain object. The Engine owns the confirmed record, the editable
// draft and the resolved identifier, and runs at most one reconciliation
// at a time.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ldcasilang/sui-portfolio/internal/cache"
	"github.com/ldcasilang/sui-portfolio/internal/chain"
	"github.com/ldcasilang/sui-portfolio/internal/locator"
	"github.com/ldcasilang/sui-portfolio/internal/notify"
	"github.com/ldcasilang/sui-portfolio/internal/portfolio"
	"github.com/ldcasilang/sui-portfolio/internal/submit"
	"go.uber.org/zap"
)

// State is the sync state of the engine.
type State string

const (
	StateUnresolved State = "unresolved"
	StateResolving  State = "resolving"
	StateResolved   State = "resolved"
	StateStale      State = "stale"
)

// ErrClosed is returned by Save after Close.
var ErrClosed = errors.New("sync engine closed")

const missingRecordMessage = "No existing portfolio record found. One will be created on the next save."

// Remote reads the current object.
type Remote interface {
	GetObject(ctx context.Context, id string) (chain.Object, error)
}

// Locator resolves the record identifier.
type Locator interface {
	Resolve(ctx context.Context, cachedID, owner, typeTag string) (locator.Resolution, error)
}

// Submitter sends create/update calls.
type Submitter interface {
	Submit(ctx context.Context, draft portfolio.Record, identifier string) (submit.Outcome, error)
	InFlight() bool
}

// Options configures an Engine.
type Options struct {
	Owner        string
	TypeTag      string
	PollInterval time.Duration
	ExplorerURL  string
}

const defaultPollInterval = 10 * time.Second

// Engine is the sync engine. Construct with New, call Load once, then Run.
type Engine struct {
	remote    Remote
	locator   Locator
	submitter Submitter
	cache     cache.Store
	notifier  notify.Sink
	opts      Options
	logger    *zap.Logger

	running atomic.Bool
	closed  atomic.Bool
	trigger chan struct{}

	mu              sync.Mutex
	state           State
	record          portfolio.Record
	draft           *portfolio.Record
	identifier      string
	cachedID        string
	lastTx          string
	notifiedMissing bool
	lastSynced      time.Time
}

// New creates an engine holding the default record.
func New(remote Remote, loc Locator, sub Submitter, store cache.Store, sink notify.Sink, opts Options, logger *zap.Logger) *Engine {
	if sink == nil {
		sink = notify.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Engine{
		remote:    remote,
		locator:   loc,
		submitter: sub,
		cache:     store,
		notifier:  sink,
		opts:      opts,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
		state:     StateUnresolved,
		record:    portfolio.Default(),
	}
}

// Load reads the cached snapshot, identifier and last transaction. A cached
// snapshot replaces the record wholesale. The cached identifier is only a
// hint for the locator until it is probed.
func (e *Engine) Load(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	snapshot, ok, err := e.cache.Get(ctx, cache.KeySnapshot)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	var rec portfolio.Record
	if ok {
		if err := json.Unmarshal([]byte(snapshot), &rec); err != nil {
			e.logger.Warn("ignoring unreadable cached snapshot", zap.Error(err))
			ok = false
		}
	}
	cachedID, _, err := e.cache.Get(ctx, cache.KeyRecordID)
	if err != nil {
		return fmt.Errorf("load record id: %w", err)
	}
	lastTx, _, err := e.cache.Get(ctx, cache.KeyLastTx)
	if err != nil {
		return fmt.Errorf("load last transaction: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ok {
		e.record = rec
	}
	e.cachedID = cachedID
	e.lastTx = lastTx
	return nil
}

// Reconcile runs one reconciliation. If one is already running the call is
// dropped and Reconcile returns false. Fetch failures are logged and leave
// the state as it was; the next poll retries.
func (e *Engine) Reconcile(ctx context.Context) bool {
	if e.closed.Load() {
		return false
	}
	if !e.running.CompareAndSwap(false, true) {
		return false
	}
	defer e.running.Store(false)

	e.mu.Lock()
	identifier := e.identifier
	cachedID := e.cachedID
	e.mu.Unlock()

	if identifier == "" {
		e.resolve(ctx, cachedID)
	} else {
		e.refresh(ctx, identifier)
	}
	return true
}

func (e *Engine) resolve(ctx context.Context, cachedID string) {
	e.mu.Lock()
	prev := e.state
	e.state = StateResolving
	e.mu.Unlock()

	res, err := e.locator.Resolve(ctx, cachedID, e.opts.Owner, e.opts.TypeTag)
	if e.closed.Load() {
		return
	}
	if err != nil && !errors.Is(err, locator.ErrNotFound) {
		// outage or cancellation: keep the cached id and retry next poll
		e.logger.Debug("resolve failed", zap.Error(err))
		e.mu.Lock()
		if e.state == StateResolving {
			e.state = prev
		}
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.mu.Lock()
		e.state = StateUnresolved
		first := !e.notifiedMissing
		e.notifiedMissing = true
		hadCached := e.cachedID != ""
		e.cachedID = ""
		e.mu.Unlock()

		if hadCached {
			e.removeCached(ctx, cache.KeyRecordID)
		}
		if first {
			e.notifier.Notify(notify.KindInfo, missingRecordMessage, true)
		}
		return
	}

	obj := res.Object
	if !obj.HasContent() {
		fetched, err := e.remote.GetObject(ctx, res.ID)
		if e.closed.Load() {
			return
		}
		if err != nil {
			e.logger.Debug("fetch located record failed", zap.String("object_id", res.ID), zap.Error(err))
		} else {
			obj = fetched
		}
	}

	e.mu.Lock()
	e.identifier = res.ID
	e.cachedID = res.ID
	e.notifiedMissing = false
	e.state = StateResolved
	applied := e.applyLocked(obj)
	e.mu.Unlock()

	if applied {
		e.persistSnapshot(ctx)
	}
}

func (e *Engine) refresh(ctx context.Context, identifier string) {
	e.mu.Lock()
	prev := e.state
	e.state = StateStale
	e.mu.Unlock()

	obj, err := e.remote.GetObject(ctx, identifier)
	if e.closed.Load() {
		return
	}
	if err != nil {
		e.logger.Debug("poll fetch failed", zap.String("object_id", identifier), zap.Error(err))
		e.mu.Lock()
		if e.state == StateStale {
			e.state = prev
		}
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	if e.identifier != identifier {
		// identifier changed while the fetch was in flight
		e.mu.Unlock()
		return
	}
	e.state = StateResolved
	applied := e.applyLocked(obj)
	e.mu.Unlock()

	if applied {
		e.persistSnapshot(ctx)
	}
}

// applyLocked overwrites the record from obj's fields when it has any.
// Callers hold e.mu.
func (e *Engine) applyLocked(obj chain.Object) bool {
	if !obj.HasContent() {
		return false
	}
	next := portfolio.Normalize(obj.Fields, e.record)
	e.lastSynced = time.Now().UTC()
	if next.Equal(e.record) {
		return false
	}
	e.record = next
	return true
}

// ApplyLocalDraft merges a form edit into the draft, starting a draft from
// the confirmed record if none exists. Reconciliation never touches the
// draft.
func (e *Engine) ApplyLocalDraft(patch portfolio.Patch) portfolio.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	base := e.record
	if e.draft != nil {
		base = *e.draft
	}
	next := patch.Apply(base)
	e.draft = &next
	return next.Clone()
}

// Draft returns the draft, or the confirmed record and false when there is
// no draft.
func (e *Engine) Draft() (portfolio.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.draft == nil {
		return e.record.Clone(), false
	}
	return e.draft.Clone(), true
}

// DiscardDraft drops unsaved edits.
func (e *Engine) DiscardDraft() {
	e.mu.Lock()
	e.draft = nil
	e.mu.Unlock()
}

// Save submits the draft (or the confirmed record when there is no draft)
// as a create or update depending on whether the identifier is known. A
// cached identifier that has not been confirmed yet still targets an
// update. On success the draft becomes the confirmed record.
func (e *Engine) Save(ctx context.Context) (submit.Outcome, error) {
	if e.closed.Load() {
		return submit.Outcome{}, ErrClosed
	}
	e.mu.Lock()
	var draft portfolio.Record
	if e.draft != nil {
		draft = e.draft.Clone()
	} else {
		draft = e.record.Clone()
	}
	identifier := e.identifier
	if identifier == "" && chain.IsAddress(e.cachedID) {
		identifier = e.cachedID
	}
	e.mu.Unlock()

	out, err := e.submitter.Submit(ctx, draft, identifier)
	if err != nil {
		return out, err
	}
	if e.closed.Load() {
		return out, nil
	}

	e.mu.Lock()
	e.lastTx = out.TxRef
	confirmed := out.CreatedID
	if confirmed == "" && out.Action == submit.ActionUpdate && e.identifier == "" {
		confirmed = identifier
	}
	if confirmed != "" {
		e.identifier = confirmed
		e.cachedID = confirmed
		e.state = StateResolved
		e.notifiedMissing = false
	}
	if out.Fields != nil {
		e.record = out.Fields.Clone()
	} else {
		e.record = draft
	}
	if e.draft != nil && e.draft.Equal(draft) {
		e.draft = nil
	}
	needsLocate := out.Action == submit.ActionCreate && out.CreatedID == ""
	e.mu.Unlock()

	e.persistSnapshot(ctx)
	if needsLocate {
		e.Trigger()
	}
	return out, nil
}

// ClearIdentifier forgets the resolved identifier and its cached copy. The
// next save creates a new record unless reconciliation finds one first.
func (e *Engine) ClearIdentifier(ctx context.Context) error {
	e.mu.Lock()
	e.identifier = ""
	e.cachedID = ""
	e.state = StateUnresolved
	e.mu.Unlock()
	if e.cache == nil {
		return nil
	}
	if err := e.cache.Remove(ctx, cache.KeyRecordID); err != nil {
		return fmt.Errorf("clear record id: %w", err)
	}
	return nil
}

// Trigger asks Run for a reconciliation without waiting for the next tick.
// Repeated triggers before Run picks one up collapse into one.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run reconciles immediately, then on every poll tick, on Trigger and when
// another instance changes the cached identifier. It returns when ctx is
// done.
func (e *Engine) Run(ctx context.Context) error {
	var changes <-chan cache.Change
	if e.cache != nil {
		ch, err := e.cache.Subscribe(ctx)
		if err != nil {
			e.logger.Warn("cache change subscription unavailable", zap.Error(err))
		} else {
			changes = ch
		}
	}

	e.Reconcile(ctx)

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Reconcile(ctx)
		case <-e.trigger:
			e.Reconcile(ctx)
		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if e.handleChange(change) {
				e.Reconcile(ctx)
			}
		}
	}
}

// handleChange applies a write made by another instance. It reports
// whether a reconciliation should follow.
func (e *Engine) handleChange(change cache.Change) bool {
	if e.closed.Load() {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch change.Key {
	case cache.KeyRecordID:
		if change.Removed {
			e.identifier = ""
			e.cachedID = ""
			e.state = StateUnresolved
			return false
		}
		if change.NewValue == "" || change.NewValue == e.identifier {
			return false
		}
		e.identifier = change.NewValue
		e.cachedID = change.NewValue
		e.state = StateStale
		return true
	case cache.KeyLastTx:
		if !change.Removed {
			e.lastTx = change.NewValue
		}
	}
	return false
}

// Close stops the engine from applying any result that arrives later.
func (e *Engine) Close() {
	e.closed.Store(true)
}

func (e *Engine) persistSnapshot(ctx context.Context) {
	if e.cache == nil {
		return
	}
	e.mu.Lock()
	rec := e.record.Clone()
	e.mu.Unlock()
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, cache.KeySnapshot, string(payload)); err != nil {
		e.logger.Warn("persist snapshot failed", zap.Error(err))
	}
}

func (e *Engine) removeCached(ctx context.Context, key string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Remove(ctx, key); err != nil {
		e.logger.Warn("remove cached key failed", zap.String("key", key), zap.Error(err))
	}
}
