package persist

import (
	"context"
	"fmt"
	"strconv"
)

// EventRecord is one journal entry as stored.
type EventRecord struct {
	Tick   uint64
	Kind   string
	A, B   uint64
	Value  float64
	Detail string
}

// EventRepo writes the per-session event log.
type EventRepo struct {
	db *DB
}

func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

// StartSession records a new game session and returns its row ID.
func (r *EventRepo) StartSession(ctx context.Context, serverName, systemName string, seed int64) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO game_sessions (server_name, system_name, seed) VALUES ($1, $2, $3) RETURNING id`,
		serverName, systemName, seed,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

// EndSession stamps the end time and reason.
func (r *EventRepo) EndSession(ctx context.Context, sessionID int64, reason string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE game_sessions SET ended_at = now(), end_reason = $2 WHERE id = $1`,
		sessionID, reason,
	)
	if err != nil {
		return fmt.Errorf("end session %d: %w", sessionID, err)
	}
	return nil
}

// WriteEvents atomically writes a batch of entries in a single transaction.
func (r *EventRepo) WriteEvents(ctx context.Context, sessionID int64, events []EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("events begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		// u64 ids exceed BIGINT; NUMERIC takes them as text
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_events (session_id, tick, kind, a, b, value, detail)
			 VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7)`,
			sessionID, int64(e.Tick), e.Kind,
			strconv.FormatUint(e.A, 10), strconv.FormatUint(e.B, 10),
			e.Value, e.Detail,
		); err != nil {
			return fmt.Errorf("events insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}
