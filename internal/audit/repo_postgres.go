package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo persists audit events in an INSERT-only audit_events table.
//
// Expected schema:
//
//	CREATE TABLE audit_events (
//	    id           TEXT PRIMARY KEY,
//	    type         TEXT NOT NULL,
//	    operator_id  TEXT NOT NULL DEFAULT '',
//	    role         TEXT NOT NULL DEFAULT '',
//	    ip_address   TEXT NOT NULL DEFAULT '',
//	    session_id   TEXT NOT NULL DEFAULT '',
//	    phone_number TEXT NOT NULL DEFAULT '',
//	    message      TEXT NOT NULL DEFAULT '',
//	    metadata     TEXT NOT NULL DEFAULT '',
//	    created_at   TIMESTAMPTZ NOT NULL
//	);

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, type, operator_id, role, ip_address, session_id, phone_number, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Type, e.OperatorID, e.Role, e.IPAddress, e.SessionID, e.PhoneNumber, e.Message, e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Recent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, operator_id, role, ip_address, session_id, phone_number, message, metadata, created_at
		FROM audit_events
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: select events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Type, &e.OperatorID, &e.Role, &e.IPAddress, &e.SessionID, &e.PhoneNumber, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return out, nil
}
