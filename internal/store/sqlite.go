package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/intake-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	deal_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	snapshot   TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS clarifications (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	document_id TEXT NOT NULL,
	field_path  TEXT NOT NULL,
	status      TEXT NOT NULL,
	priority    INTEGER NOT NULL,
	payload     TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_deal_id ON sessions(deal_id);
CREATE INDEX IF NOT EXISTS idx_clarifications_session ON clarifications(session_id, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSession upserts the snapshot keyed by session id.
func (s *SQLiteStore) SaveSession(ctx context.Context, snap *model.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, deal_id, status, snapshot, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		snap.ID, snap.DealID, string(snap.Status), string(data),
		snap.CreatedAt.UTC(), snap.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save session %s", snap.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.SessionSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM sessions WHERE id = ?`, id)

	var data string
	if err := row.Scan(&data); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "session %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}
	return unmarshalSession([]byte(data))
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.SessionSnapshot, error) {
	query := `SELECT snapshot FROM sessions WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.DealID != "" {
		query += ` AND deal_id = ?`
		args = append(args, filter.DealID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var out []model.SessionSnapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		snap, err := unmarshalSession([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sessions")
}

// SaveClarification upserts the record keyed by clarification id.
func (s *SQLiteStore) SaveClarification(ctx context.Context, c *model.Clarification) error {
	data, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal clarification")
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO clarifications (id, session_id, document_id, field_path, status, priority, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			priority = excluded.priority,
			payload = excluded.payload`,
		c.ID, c.SessionID, c.DocumentID, c.FieldPath,
		string(c.Status), c.Priority, string(data), createdAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save clarification %s", c.ID)
}

func (s *SQLiteStore) LoadPendingClarifications(ctx context.Context, sessionID string) ([]model.Clarification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM clarifications
		 WHERE session_id = ? AND status = ?
		 ORDER BY priority DESC, created_at ASC`,
		sessionID, string(model.ClarificationPending),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load pending clarifications %s", sessionID)
	}
	defer rows.Close()

	var out []model.Clarification
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan clarification")
		}
		var c model.Clarification
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal clarification")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate clarifications")
}

func unmarshalSession(data []byte) (*model.SessionSnapshot, error) {
	var snap model.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal session")
	}
	return &snap, nil
}
