package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore persists call records in a single call_records table.
// Transcript and order are stored as JSONB; the dashboard reads them as
// documents, not relationally.
//
// Expected schema:
//
//	CREATE TABLE call_records (
//	    session_id   TEXT PRIMARY KEY,
//	    phone_number TEXT NOT NULL,
//	    started_at   TIMESTAMPTZ NOT NULL,
//	    ended_at     TIMESTAMPTZ NOT NULL,
//	    end_reason   TEXT NOT NULL,
//	    transcript   JSONB NOT NULL,
//	    order_state  JSONB NOT NULL
//	);

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	if rec.SessionID == "" {
		return ErrInvalidRecord
	}

	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return fmt.Errorf("history: marshal transcript: %w", err)
	}
	orderState, err := json.Marshal(rec.Order)
	if err != nil {
		return fmt.Errorf("history: marshal order: %w", err)
	}

	// Write-once: a conflicting session_id leaves the original row intact.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO call_records (session_id, phone_number, started_at, ended_at, end_reason, transcript, order_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO NOTHING`,
		rec.SessionID, rec.PhoneNumber, rec.StartedAt, rec.EndedAt, rec.EndReason, transcript, orderState,
	)
	if err != nil {
		return fmt.Errorf("history: insert record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlreadySaved
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (Record, error) {
	var (
		rec        Record
		transcript []byte
		orderState []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, phone_number, started_at, ended_at, end_reason, transcript, order_state
		FROM call_records
		WHERE session_id = $1`,
		sessionID,
	).Scan(&rec.SessionID, &rec.PhoneNumber, &rec.StartedAt, &rec.EndedAt, &rec.EndReason, &transcript, &orderState)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("history: select record: %w", err)
	}

	if err := json.Unmarshal(transcript, &rec.Transcript); err != nil {
		return Record{}, fmt.Errorf("history: decode transcript: %w", err)
	}
	if err := json.Unmarshal(orderState, &rec.Order); err != nil {
		return Record{}, fmt.Errorf("history: decode order: %w", err)
	}
	return rec, nil
}
