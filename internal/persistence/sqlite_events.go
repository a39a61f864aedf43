package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/skein/pkg/api"
)

// SQLiteEventStore stores fiber events in SQLite.
type SQLiteEventStore struct {
	db *sql.DB
}

var _ EventStore = (*SQLiteEventStore)(nil)

func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS fiber_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL DEFAULT '',
			engine_id TEXT NOT NULL,
			fiber_id INTEGER NOT NULL,
			parent_id INTEGER NOT NULL DEFAULT 0,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			step TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_fiber_events_fiber ON fiber_events(engine_id, fiber_id, id);
	`)
	return err
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev api.FiberEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fiber_events (event_id, engine_id, fiber_id, parent_id, at, type, step, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.EngineID,
		ev.FiberID,
		ev.ParentID,
		at.UnixNano(),
		string(ev.Type),
		ev.Step,
		ev.Detail,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, engineID string, fiberID int64) ([]api.FiberEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, engine_id, fiber_id, parent_id, at, type, step, detail
		FROM fiber_events
		WHERE engine_id = ? AND fiber_id = ?
		ORDER BY id ASC`, engineID, fiberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.FiberEvent
	for rows.Next() {
		var (
			ev  api.FiberEvent
			atN int64
			typ string
		)
		if err := rows.Scan(&ev.ID, &ev.EngineID, &ev.FiberID, &ev.ParentID, &atN, &typ, &ev.Step, &ev.Detail); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, atN)
		ev.Type = api.EventType(typ)
		out = append(out, ev)
	}
	return out, rows.Err()
}
