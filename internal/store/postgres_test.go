package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_SaveSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	snap := testSnapshot(model.StatusRunning)

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(snap.ID, snap.DealID, string(snap.Status), pgxmock.AnyArg(),
			snap.CreatedAt.UTC(), snap.UpdatedAt.UTC()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveSession(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	snap := testSnapshot(model.StatusComplete)
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT snapshot FROM sessions WHERE id = \$1`).
		WithArgs(snap.ID).
		WillReturnRows(pgxmock.NewRows([]string{"snapshot"}).AddRow(data))

	got, err := s.GetSession(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, model.StatusComplete, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT snapshot FROM sessions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSessionsWithFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	snap := testSnapshot(model.StatusAwaitingClarifications)
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT snapshot FROM sessions WHERE 1=1 AND status = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(string(model.StatusAwaitingClarifications), 10).
		WillReturnRows(pgxmock.NewRows([]string{"snapshot"}).AddRow(data))

	got, err := s.ListSessions(context.Background(), SessionFilter{
		Status: model.StatusAwaitingClarifications,
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, snap.ID, got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveClarification(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	c := testClarification("s1", model.ClarificationPending, 9)

	mock.ExpectExec(`INSERT INTO clarifications`).
		WithArgs(c.ID, c.SessionID, c.DocumentID, c.FieldPath,
			string(c.Status), c.Priority, pgxmock.AnyArg(), c.CreatedAt.UTC()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveClarification(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadPendingClarifications(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	c := testClarification("s1", model.ClarificationPending, 9)
	data, err := json.Marshal(c)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT payload FROM clarifications`).
		WithArgs("s1", string(model.ClarificationPending)).
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(data))

	got, err := s.LoadPendingClarifications(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c.ID, got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sessions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
