package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink appends events to the auth_audit_log table. Rows are insert
// only; nothing in the schema or this code updates or deletes them.
type PostgresSink struct {
	db *pgxpool.Pool
}

// NewPostgresSink builds a table-backed sink.
func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: db}
}

const insertEventSQL = `INSERT INTO auth_audit_log
(id, event_type, occurred_at, session_id, correlation_id, causation_id, ip_hash, user_agent_hash, user_id, organization_id, payload)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, 0), NULLIF($10, 0), $11)`

// Emit inserts one row per event.
func (s *PostgresSink) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.db.Exec(ctx, insertEventSQL,
		uuid.NewString(),
		string(event.Type),
		event.OccurredAt,
		event.Context.SessionID,
		event.Context.CorrelationID,
		event.Context.CausationID,
		event.Context.IPHash,
		event.Context.UserAgentHash,
		event.Context.UserID,
		event.Context.OrgID,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
