package driver_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/sqlbridge/sqlproxy/driver"
	"github.com/tomyedwab/sqlbridge/sqlproxy/host"
)

func newHost(t *testing.T) *host.SQLHost {
	h := host.NewSQLHost(host.MemoryStore, nil)
	t.Cleanup(func() { h.Close() })
	return h
}

func openOn(t *testing.T, h *host.SQLHost) *sql.DB {
	db := sql.OpenDB(driver.NewConnector(func(payload []byte) ([]byte, error) {
		return h.HandleRequest(context.Background(), payload)
	}))
	t.Cleanup(func() { db.Close() })
	return db
}

func openProxy(t *testing.T) *sql.DB {
	return openOn(t, newHost(t))
}

func TestProxyRoundTrip(t *testing.T) {
	db := openProxy(t)

	_, err := db.Exec("CREATE TABLE foo (a, b)")
	require.NoError(t, err)

	res, err := db.Exec("INSERT INTO foo (a, b) VALUES (?, ?), (?, ?)", 1, "one", 2, []any{"x"})
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := db.Query("SELECT b, a FROM foo ORDER BY a")
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, cols)

	var got [][2]any
	for rows.Next() {
		var b, a any
		require.NoError(t, rows.Scan(&b, &a))
		got = append(got, [2]any{b, a})
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, [][2]any{{"one", 1.0}, {`["x"]`, 2.0}}, got)
}

func TestConnectorsAreIsolated(t *testing.T) {
	h := newHost(t)
	db1 := openOn(t, h)
	db2 := openOn(t, h)

	_, err := db1.Exec("CREATE TABLE foo (a)")
	require.NoError(t, err)
	_, err = db2.Exec("INSERT INTO foo VALUES (1)")
	assert.ErrorContains(t, err, "no such table: foo")
	assert.Equal(t, 2, h.Databases())

	// Closing the sql.DB releases its host database.
	require.NoError(t, db1.Close())
	assert.Equal(t, 1, h.Databases())
	require.NoError(t, db2.Close())
	assert.Equal(t, 0, h.Databases())
}

func TestConnectorOpensLazily(t *testing.T) {
	h := newHost(t)
	db := openOn(t, h)
	assert.Equal(t, 0, h.Databases())

	require.NoError(t, db.Ping())
	require.NoError(t, db.Ping())
	assert.Equal(t, 1, h.Databases())
}

func TestSharedStoreConnectors(t *testing.T) {
	storage := sqlx.MustConnect("sqlite3", ":memory:")
	storage.SetMaxOpenConns(1)
	t.Cleanup(func() { storage.Close() })
	h := host.NewSQLHost(host.SharedStore(storage), nil)

	_, err := openOn(t, h).Exec("CREATE TABLE foo (a)")
	require.NoError(t, err)
	_, err = openOn(t, h).Exec("INSERT INTO foo VALUES (1)")
	assert.NoError(t, err)
}

func TestHostErrorsSurface(t *testing.T) {
	db := openProxy(t)

	_, err := db.Exec("INSERT INTO missing VALUES (1)")
	var hostErr *driver.HostError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, "exec", hostErr.Command)
	assert.Contains(t, hostErr.Message, "no such table")
}

func TestBeginIsUnsupported(t *testing.T) {
	db := openProxy(t)

	_, err := db.Begin()
	assert.ErrorIs(t, err, driver.ErrTxUnsupported)
}
