package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ldcasilang/sui-portfolio/internal/portfolio"
)

// ErrDuplicateTransaction is returned when a digest is already recorded.
var ErrDuplicateTransaction = errors.New("transaction already recorded")

const uniqueViolation = "23505"

// Transaction is one recorded submission.
type Transaction struct {
	Digest    string           `json:"digest"`
	Action    string           `json:"action"`
	RecordID  string           `json:"record_id,omitempty"`
	Snapshot  portfolio.Record `json:"snapshot"`
	CreatedAt time.Time        `json:"created_at"`
}

// Ledger appends and lists portfolio transactions.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// InsertTransaction records tx. CreatedAt is set by the database when zero.
func (l *Ledger) InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	snapshot, err := json.Marshal(tx.Snapshot)
	if err != nil {
		return Transaction{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	var recordID sql.NullString
	if tx.RecordID != "" {
		recordID = sql.NullString{String: tx.RecordID, Valid: true}
	}

	const insert = `
		INSERT INTO portfolio_transactions (digest, action, record_id, snapshot)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING created_at
	`
	err = l.db.QueryRowContext(ctx, insert, tx.Digest, tx.Action, recordID, string(snapshot)).Scan(&tx.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Transaction{}, ErrDuplicateTransaction
		}
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

// ListTransactions returns up to limit transactions, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT digest, action, COALESCE(record_id, ''), snapshot, created_at
		FROM portfolio_transactions
		ORDER BY created_at DESC, digest
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		var (
			tx       Transaction
			snapshot []byte
		)
		if err := rows.Scan(&tx.Digest, &tx.Action, &tx.RecordID, &snapshot, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if err := json.Unmarshal(snapshot, &tx.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", tx.Digest, err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
