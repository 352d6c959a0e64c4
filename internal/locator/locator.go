// Package locator finds the identifier of the portfolio record on chain.
package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ldcasilang/sui-portfolio/internal/cache"
	"github.com/ldcasilang/sui-portfolio/internal/chain"
	"go.uber.org/zap"
)

var (
	// ErrNotFound means the lookup completed and no record exists: the
	// cached id, if any, was checked and at least one search ran cleanly.
	ErrNotFound = errors.New("portfolio record not found")
	// ErrUnavailable means the lookup failed without ruling out a record,
	// because the cached id could not be checked or every search errored.
	ErrUnavailable = errors.New("portfolio record lookup unavailable")
)

// errSkipped marks a strategy with nothing to try.
var errSkipped = errors.New("strategy skipped")

// Remote is the part of the chain client the locator reads from.
type Remote interface {
	GetObject(ctx context.Context, id string) (chain.Object, error)
	GetOwnedObjects(ctx context.Context, owner, typeTag string) ([]chain.Object, error)
	QueryObjectsByType(ctx context.Context, typeTag string) ([]chain.Object, error)
}

// Strategy names, in the order they run.
const (
	StrategyCached   = "cached"
	StrategyType     = "type_query"
	StrategyFallback = "fallback"
	StrategyOwner    = "owner"
)

// Resolution is a located record. Object holds whatever the winning
// strategy fetched; its Fields may be empty when the strategy only saw
// metadata.
type Resolution struct {
	ID       string
	Object   chain.Object
	Strategy string
}

// Locator runs the fallback chain.
type Locator struct {
	remote     Remote
	cache      cache.Store
	fallbackID string
	logger     *zap.Logger
}

// New creates a locator. fallbackID may be empty to skip the fixed probe;
// store may be nil to skip persisting.
func New(remote Remote, store cache.Store, fallbackID string, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{remote: remote, cache: store, fallbackID: fallbackID, logger: logger}
}

// Resolve tries the cached id, a type query, the fixed fallback id and the
// owner's objects, stopping at the first hit. Strategy failures are logged
// and skipped. A hit is written to the cache before Resolve returns. With
// no hit, Resolve returns ErrNotFound or ErrUnavailable.
func (l *Locator) Resolve(ctx context.Context, cachedID, owner, typeTag string) (Resolution, error) {
	typeName := typeNameOf(typeTag)

	steps := []struct {
		name string
		run  func() (chain.Object, bool, error)
	}{
		{StrategyCached, func() (chain.Object, bool, error) { return l.probe(ctx, cachedID) }},
		{StrategyType, func() (chain.Object, bool, error) {
			objs, err := l.remote.QueryObjectsByType(ctx, typeTag)
			if err != nil {
				return chain.Object{}, false, err
			}
			obj, ok := firstOfType(objs, typeName)
			return obj, ok, nil
		}},
		{StrategyFallback, func() (chain.Object, bool, error) { return l.probe(ctx, l.fallbackID) }},
		{StrategyOwner, func() (chain.Object, bool, error) {
			if owner == "" {
				return chain.Object{}, false, errSkipped
			}
			objs, err := l.remote.GetOwnedObjects(ctx, owner, "")
			if err != nil {
				return chain.Object{}, false, err
			}
			obj, ok := firstOfType(objs, typeName)
			return obj, ok, nil
		}},
	}

	var (
		failures      []error
		cachedFailed  bool
		searchedClean bool
	)
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		obj, ok, err := step.run()
		if errors.Is(err, errSkipped) {
			continue
		}
		if err != nil {
			l.logger.Debug("locator strategy failed",
				zap.String("strategy", step.name),
				zap.Error(err))
			failures = append(failures, fmt.Errorf("%s: %w", step.name, err))
			if step.name == StrategyCached {
				cachedFailed = true
			}
			continue
		}
		if step.name != StrategyCached {
			searchedClean = true
		}
		if !ok {
			continue
		}
		res := Resolution{ID: obj.ID, Object: obj, Strategy: step.name}
		l.persist(ctx, res.ID)
		l.logger.Info("portfolio record located",
			zap.String("strategy", step.name),
			zap.String("object_id", res.ID))
		return res, nil
	}
	if cachedFailed || !searchedClean {
		if len(failures) == 0 {
			return Resolution{}, ErrUnavailable
		}
		return Resolution{}, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(failures...))
	}
	return Resolution{}, ErrNotFound
}

// probe fetches id directly; it counts only when the node returns content.
// A node answer of "no such object" is a clean miss, not a failure.
func (l *Locator) probe(ctx context.Context, id string) (chain.Object, bool, error) {
	if !chain.IsAddress(id) {
		return chain.Object{}, false, errSkipped
	}
	obj, err := l.remote.GetObject(ctx, id)
	if errors.Is(err, chain.ErrObjectNotFound) {
		return chain.Object{}, false, nil
	}
	if err != nil {
		return chain.Object{}, false, err
	}
	if !obj.HasContent() {
		return chain.Object{}, false, nil
	}
	if obj.ID == "" {
		obj.ID = id
	}
	return obj, true, nil
}

func (l *Locator) persist(ctx context.Context, id string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Set(ctx, cache.KeyRecordID, id); err != nil {
		l.logger.Warn("persist record id failed", zap.String("object_id", id), zap.Error(err))
	}
}

// firstOfType returns the first object, in result order, whose type
// contains typeName.
func firstOfType(objs []chain.Object, typeName string) (chain.Object, bool) {
	for _, obj := range objs {
		if obj.ID != "" && strings.Contains(obj.Type, typeName) {
			return obj, true
		}
	}
	return chain.Object{}, false
}

// typeNameOf reduces a full tag to module::Struct so package upgrades still
// match; anything unparseable is matched as given.
func typeNameOf(typeTag string) string {
	if tag, err := chain.ParseTypeTag(typeTag); err == nil {
		return tag.ShortName()
	}
	return typeTag
}
