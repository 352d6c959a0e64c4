package syncer

import (
	"time"

	"github.com/ldcasilang/sui-portfolio/internal/portfolio"
	"github.com/ldcasilang/sui-portfolio/internal/submit"
)

// Data sources shown on the latest transaction card.
const (
	SourceBlockchain = "blockchain"
	SourceLocal      = "local"
)

// Transaction describes the last completed mutation.
type Transaction struct {
	Digest      string `json:"digest"`
	Short       string `json:"short"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	State       State            `json:"state"`
	Identifier  string           `json:"identifier,omitempty"`
	Record      portfolio.Record `json:"record"`
	HasDraft    bool             `json:"has_draft"`
	Saving      bool             `json:"saving"`
	Source      string           `json:"source"`
	Transaction *Transaction     `json:"transaction,omitempty"`
	LastSynced  *time.Time       `json:"last_synced,omitempty"`
}

// Status returns the current state, confirmed record and latest
// transaction.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:      e.state,
		Identifier: e.identifier,
		Record:     e.record.Clone(),
		HasDraft:   e.draft != nil,
		Saving:     e.submitter != nil && e.submitter.InFlight(),
		Source:     SourceLocal,
	}
	if e.identifier != "" {
		st.Source = SourceBlockchain
	}
	if e.lastTx != "" {
		st.Transaction = &Transaction{
			Digest:      e.lastTx,
			Short:       submit.ShortDigest(e.lastTx),
			ExplorerURL: submit.ExplorerLink(e.opts.ExplorerURL, e.lastTx),
		}
	}
	if !e.lastSynced.IsZero() {
		t := e.lastSynced
		st.LastSynced = &t
	}
	return st
}

// State returns the current sync state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Record returns a copy of the confirmed record.
func (e *Engine) Record() portfolio.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Clone()
}

// Identifier returns the resolved identifier, or "".
func (e *Engine) Identifier() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identifier
}
