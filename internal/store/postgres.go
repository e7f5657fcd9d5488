package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"save_session": `INSERT INTO sessions (id, deal_id, status, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET status = $3, snapshot = $4, updated_at = $6`,
	"get_session": `SELECT snapshot FROM sessions WHERE id = $1`,
	"save_clarification": `INSERT INTO clarifications (id, session_id, document_id, field_path, status, priority, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET status = $5, priority = $6, payload = $7`,
	"load_pending_clarifications": `SELECT payload FROM clarifications
		WHERE session_id = $1 AND status = $2 ORDER BY priority DESC, created_at ASC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	deal_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	snapshot   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS clarifications (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	document_id TEXT NOT NULL,
	field_path  TEXT NOT NULL,
	status      TEXT NOT NULL,
	priority    INTEGER NOT NULL,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_deal_id ON sessions(deal_id);
CREATE INDEX IF NOT EXISTS idx_clarifications_session ON clarifications(session_id, status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, snap *model.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}

	_, err = s.pool.Exec(ctx, preparedStatements["save_session"],
		snap.ID, snap.DealID, string(snap.Status), data,
		snap.CreatedAt.UTC(), snap.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save session %s", snap.ID)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.SessionSnapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, preparedStatements["get_session"], id).Scan(&data)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "session %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	return unmarshalSession(data)
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.SessionSnapshot, error) {
	query := `SELECT snapshot FROM sessions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.DealID != "" {
		query += ` AND deal_id = ` + arg(filter.DealID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ` + arg(filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.SessionSnapshot
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		snap, err := unmarshalSession(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sessions")
}

func (s *PostgresStore) SaveClarification(ctx context.Context, c *model.Clarification) error {
	data, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal clarification")
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, preparedStatements["save_clarification"],
		c.ID, c.SessionID, c.DocumentID, c.FieldPath,
		string(c.Status), c.Priority, data, createdAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save clarification %s", c.ID)
}

func (s *PostgresStore) LoadPendingClarifications(ctx context.Context, sessionID string) ([]model.Clarification, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["load_pending_clarifications"],
		sessionID, string(model.ClarificationPending))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load pending clarifications %s", sessionID)
	}
	defer rows.Close()

	var out []model.Clarification
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan clarification")
		}
		var c model.Clarification
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal clarification")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate clarifications")
}
