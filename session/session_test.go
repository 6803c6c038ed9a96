package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/sqlbridge/engine"
	"github.com/tomyedwab/sqlbridge/engine/enginetest"
	"github.com/tomyedwab/sqlbridge/sqliteengine"
	"github.com/tomyedwab/sqlbridge/value"
)

func TestExec(t *testing.T) {
	engErr := engine.NewError("exec", "syntax error")
	stub := &enginetest.Stub{ExecFunc: func(_ engine.Handle, statement string, _ []any) error {
		if statement == "BAD" {
			return engErr
		}
		return nil
	}}
	db := openStub(t, stub)

	require.NoError(t, db.Exec(testCtx(t), "CREATE TABLE foo (a)"))
	assert.Same(t, engErr, db.Exec(testCtx(t), "BAD"))
}

// doubleExec reports two results for every statement.
type doubleExec struct {
	*enginetest.Stub
	second error
}

func (d *doubleExec) Execute(ctx context.Context, h engine.Handle, statement string, params []any, cb engine.ExecCallback) {
	cb(nil)
	cb(d.second)
}

func TestExecSettlesOnce(t *testing.T) {
	eng := NewEngine(&doubleExec{Stub: &enginetest.Stub{}, second: errors.New("second")})
	db, err := eng.Database(testCtx(t))
	require.NoError(t, err)

	c := db.ExecAsync(testCtx(t), "INSERT INTO foo VALUES (1)")
	_, err = c.Wait(testCtx(t))
	assert.NoError(t, err)
	_, ok, err := c.Result()
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestExecInvalidParams(t *testing.T) {
	stub := &enginetest.Stub{}
	db := openStub(t, stub)

	err := db.Exec(testCtx(t), "INSERT INTO foo VALUES (?)", make(chan int))
	assert.ErrorContains(t, err, "invalid statement parameters")
	assert.Len(t, stub.Calls(), 1) // only the open
}

func TestDatabaseHandles(t *testing.T) {
	eng := NewEngine(&enginetest.Stub{})

	db1, err := eng.Database(testCtx(t))
	require.NoError(t, err)
	db2, err := eng.Database(testCtx(t))
	require.NoError(t, err)

	assert.NotEqual(t, db1.Handle(), db2.Handle())
	assert.Equal(t, 2, eng.Databases())
}

func TestDatabaseOpenError(t *testing.T) {
	engErr := engine.NewError("open database", "out of memory")
	eng := NewEngine(&enginetest.Stub{OpenFunc: func() (engine.Handle, error) { return 0, engErr }})

	_, err := eng.Database(testCtx(t))
	assert.Same(t, engErr, err)
	assert.Equal(t, 0, eng.Databases())
}

func TestDatabaseDuplicateHandle(t *testing.T) {
	eng := NewEngine(&enginetest.Stub{OpenFunc: func() (engine.Handle, error) { return 5, nil }})

	_, err := eng.Database(testCtx(t))
	require.NoError(t, err)
	_, err = eng.Database(testCtx(t))
	assert.ErrorContains(t, err, "handle 5 twice")
}

// slowOpen reports its database only once release is closed.
type slowOpen struct {
	*enginetest.Stub
	release chan struct{}
	opened  chan struct{}
}

func (s *slowOpen) OpenDatabase(ctx context.Context, cb engine.OpenCallback) {
	go func() {
		<-s.release
		cb(9, nil)
		close(s.opened)
	}()
}

func TestDatabaseCancelledBeforeOpen(t *testing.T) {
	slow := &slowOpen{Stub: &enginetest.Stub{}, release: make(chan struct{}), opened: make(chan struct{})}
	eng := NewEngine(slow)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Database(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(slow.release)
	<-slow.opened
	assert.Eventually(t, func() bool { return eng.Databases() == 0 }, time.Second, 10*time.Millisecond)
}

func TestDatabaseAsyncCancelledRejects(t *testing.T) {
	slow := &slowOpen{Stub: &enginetest.Stub{}, release: make(chan struct{}), opened: make(chan struct{})}
	eng := NewEngine(slow)

	ctx, cancel := context.WithCancel(context.Background())
	c := eng.DatabaseAsync(ctx)
	cancel()
	close(slow.release)
	<-slow.opened

	_, ok, err := c.Result()
	assert.True(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, eng.Databases())
}

func TestEngineClosed(t *testing.T) {
	native := sqliteengine.New()
	eng := NewEngine(native)
	db, err := eng.Database(testCtx(t))
	require.NoError(t, err)

	require.NoError(t, eng.Close(context.Background()))
	require.NoError(t, eng.Close(context.Background()))
	assert.Equal(t, 0, eng.Databases())

	_, err = eng.Database(testCtx(t))
	assert.ErrorIs(t, err, engine.ErrClosed)
	assert.ErrorIs(t, db.Exec(testCtx(t), "SELECT 1"), engine.ErrClosed)
	_, err = db.Query("SELECT 1").Collect(testCtx(t))
	assert.ErrorIs(t, err, engine.ErrClosed)
}

func TestSelectFromNativeEngine(t *testing.T) {
	eng := NewEngine(sqliteengine.New())
	t.Cleanup(func() { eng.Close(context.Background()) })
	ctx := testCtx(t)

	db, err := eng.Database(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Exec(ctx, "CREATE TABLE foo (a)"))
	for i := 1; i <= 3; i++ {
		require.NoError(t, db.Exec(ctx, "INSERT INTO foo (a) VALUES (?)", i))
	}

	var rows []*value.Object
	err = db.Query("SELECT * FROM foo").ForEach(ctx, func(row *value.Object) error {
		rows = append(rows, row)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.True(t, row.Equal(value.Obj("a", i+1)), "row %d: %s", i, row)
	}
}

func TestNativeEngineNestedStatements(t *testing.T) {
	eng := NewEngine(sqliteengine.New())
	t.Cleanup(func() { eng.Close(context.Background()) })
	ctx := testCtx(t)

	db, err := eng.Database(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Exec(ctx, "CREATE TABLE src (a)"))
	require.NoError(t, db.Exec(ctx, "CREATE TABLE dst (a)"))
	require.NoError(t, db.Exec(ctx, "INSERT INTO src (a) VALUES (1), (2)"))

	err = db.Query("SELECT a FROM src").ForEach(ctx, func(row *value.Object) error {
		a, _ := row.Get("a")
		return db.Exec(ctx, "INSERT INTO dst (a) VALUES (?)", a)
	})
	require.NoError(t, err)

	rows, err := db.Query("SELECT a FROM dst ORDER BY a").Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestInitializeMissingModule(t *testing.T) {
	_, err := Initialize(context.Background(), WithModuleLocation(filepath.Join(t.TempDir(), "missing.wasm")))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMain(m *testing.M) {
	code := m.Run()
	enginetest.Cleanup()
	os.Exit(code)
}

func initializeTestEngine(t *testing.T, opts ...Option) *Engine {
	module := enginetest.Module(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eng, err := Initialize(ctx, append([]Option{WithModuleLocation(module)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close(context.Background()) })
	return eng
}

func TestInitializeWithModule(t *testing.T) {
	storage := sqlx.MustConnect("sqlite3", ":memory:")
	storage.SetMaxOpenConns(1)
	defer storage.Close()

	eng := initializeTestEngine(t, WithStorage(storage))
	ctx := testCtx(t)

	db, err := eng.Database(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Exec(ctx, "CREATE TABLE foo (a)"))
	require.NoError(t, db.Exec(ctx, "INSERT INTO foo (a) VALUES (?), (?), (?)", 1, 2, 3))

	rows, err := db.Query("SELECT * FROM foo").Filter(func(row *value.Object) bool {
		a, _ := row.Get("a")
		n, _ := a.AsNumber()
		return n > 1
	}).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Equal(value.Obj("a", 2)))

	// The caller's database holds the engine's tables.
	var count int
	require.NoError(t, storage.Get(&count, "SELECT COUNT(*) FROM foo"))
	assert.Equal(t, 3, count)
}

func assertDatabasesIsolated(t *testing.T, eng *Engine) {
	t.Helper()
	ctx := testCtx(t)

	db1, err := eng.Database(ctx)
	require.NoError(t, err)
	db2, err := eng.Database(ctx)
	require.NoError(t, err)

	require.NoError(t, db1.Exec(ctx, "CREATE TABLE foo (a)"))
	require.NoError(t, db1.Exec(ctx, "INSERT INTO foo (a) VALUES (1)"))

	rows, err := db2.Query("SELECT * FROM foo").Collect(ctx)
	assert.ErrorIs(t, err, engine.ErrEngine)
	assert.ErrorContains(t, err, "no such table: foo")
	assert.Empty(t, rows)

	rows, err = db1.Query("SELECT * FROM foo").Collect(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Equal(value.Obj("a", 1)))
}

func TestInitializeDatabasesAreIsolated(t *testing.T) {
	assertDatabasesIsolated(t, initializeTestEngine(t))
}

func TestNativeDatabasesAreIsolated(t *testing.T) {
	eng := NewEngine(sqliteengine.New())
	t.Cleanup(func() { eng.Close(context.Background()) })
	assertDatabasesIsolated(t, eng)
}

func TestInitializeSharedStorage(t *testing.T) {
	storage := sqlx.MustConnect("sqlite3", ":memory:")
	storage.SetMaxOpenConns(1)
	defer storage.Close()

	eng := initializeTestEngine(t, WithStorage(storage))
	ctx := testCtx(t)

	db1, err := eng.Database(ctx)
	require.NoError(t, err)
	db2, err := eng.Database(ctx)
	require.NoError(t, err)

	require.NoError(t, db1.Exec(ctx, "CREATE TABLE foo (a)"))
	require.NoError(t, db2.Exec(ctx, "INSERT INTO foo (a) VALUES (1)"))
	row, err := db1.Query("SELECT * FROM foo").First(ctx)
	require.NoError(t, err)
	assert.True(t, row.Equal(value.Obj("a", 1)))

	require.NoError(t, eng.Close(ctx))
	assert.NoError(t, storage.Ping())
}
