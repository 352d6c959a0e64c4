// Package cache is the durable local cache the sync engine persists its
// resolved identifier, last transaction digest and record snapshot into.
// Every backend broadcasts writes so other processes sharing the cache can
// pick up a mutation completed elsewhere.
package cache

import (
	"context"
	"errors"
)

// Keys written by the portfolio.
const (
	KeyRecordID = "portfolioObjectId"
	KeyLastTx   = "lastTransactionDigest"
	KeySnapshot = "portfolioData"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache closed")

// Change is delivered to subscribers when a key is written or removed by
// another instance. NewValue is empty for removals.
type Change struct {
	Key      string `json:"key"`
	NewValue string `json:"newValue"`
	Removed  bool   `json:"removed,omitempty"`
	Origin   string `json:"origin"`
}

// Store is a string key/value cache with cross-instance change
// notification. Subscribe never delivers changes made through the same
// Store value.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Subscribe(ctx context.Context) (<-chan Change, error)
	Ping(ctx context.Context) error
	Close() error
}
