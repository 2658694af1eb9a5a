package ingest

import (
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ExPixel/mercury/lalog"
)

// expectMigrations sets up the mock expectations for the one-time migration
// sequence newStore runs before handing control to the caller: create the
// migrations table, check and apply create_mail_table, then record it.
func expectMigrations(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS migrations`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM migrations WHERE name = ?);`)).
		WithArgs("create_mail_table").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS mail`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO migrations (name, migrated_at) VALUES (?, ?);`)).
		WithArgs("create_mail_table", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	expectMigrations(mock)
	s, err := newStore(db, &lalog.Logger{ComponentName: "ingest-test"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, mock
}

func TestOpenStoreSkipsAppliedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS migrations`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM migrations WHERE name = ?);`)).
		WithArgs("create_mail_table").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	s, err := newStore(db, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreInsertReturnsAssignedID(t *testing.T) {
	s, mock := newTestStore(t)
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO mail (reverse_path, forward_path, headers, created_at, body_path) VALUES (?, ?, ?, ?, ?);`)).
		WithArgs("a@b.test", `["c@d.test"]`, `{"Subject":"hi"}`, createdAt, "").
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := s.Insert("a@b.test", `["c@d.test"]`, `{"Subject":"hi"}`, "", createdAt)
	require.NoError(t, err)
	assert.Equal(t, MessageID(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdateBodyPath(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE mail SET body_path = ? WHERE id = ?;`)).
		WithArgs("3.mail.gz", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpdateBodyPath(3, "3.mail.gz"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetReturnsFalseWhenMissing(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, reverse_path, forward_path, headers, created_at, body_path FROM mail WHERE id = ?;`)).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, ok, err := s.Get(99)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetDecodesRow(t *testing.T) {
	s, mock := newTestStore(t)
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "reverse_path", "forward_path", "headers", "created_at", "body_path"}).
		AddRow(int64(5), "a@b.test", `["c@d.test"]`, `{"Subject":"hi"}`, createdAt, "5.mail.gz")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, reverse_path, forward_path, headers, created_at, body_path FROM mail WHERE id = ?;`)).
		WithArgs(int64(5)).
		WillReturnRows(rows)

	msg, ok, err := s.Get(5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, MessageID(5), msg.ID)
	assert.Equal(t, "a@b.test", msg.ReversePath)
	assert.Equal(t, []string{"c@d.test"}, msg.ForwardPath)
	assert.Equal(t, "hi", msg.Headers["Subject"])
	assert.Equal(t, "5.mail.gz", msg.BodyPath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListOrdersAscendingById(t *testing.T) {
	s, mock := newTestStore(t)
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "reverse_path", "forward_path", "headers", "created_at", "body_path"}).
		AddRow(int64(1), "a@b.test", `[]`, `{}`, createdAt, "1.mail.gz").
		AddRow(int64(2), "x@y.test", `[]`, `{}`, createdAt, "2.mail.gz")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, reverse_path, forward_path, headers, created_at, body_path FROM mail WHERE id > ? ORDER BY id ASC LIMIT ?;`)).
		WithArgs(int64(0), 10).
		WillReturnRows(rows)

	out, err := s.List(0, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, MessageID(1), out[0].ID)
	assert.Equal(t, MessageID(2), out[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
