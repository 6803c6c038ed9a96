// Command sqlbridge runs SQL statements against the database engine, either
// the sandboxed module or the native engine, and prints query rows as JSON.
//
//	sqlbridge -wasm engine.wasm "CREATE TABLE foo (a)" "INSERT INTO foo VALUES (1)" "SELECT * FROM foo"
//
// With no statement arguments, statements are read from stdin, one per line.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tomyedwab/sqlbridge/session"
	"github.com/tomyedwab/sqlbridge/sqliteengine"
	"github.com/tomyedwab/sqlbridge/value"
)

func main() {
	engineKind := flag.String("engine", "wasm", "Engine to run statements on: wasm or native")
	wasmLocation := flag.String("wasm", session.DefaultModuleLocation, "Path or URL of the engine module")
	dbPath := flag.String("dbPath", "", "Path to the SQLite database file (default: in-memory)")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng, err := openEngine(ctx, *engineKind, *wasmLocation, *dbPath, logger)
	if err != nil {
		logger.Fatal("failed to start engine", zap.Error(err))
	}
	defer eng.Close(context.Background())

	db, err := eng.Database(ctx)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}

	out := json.NewEncoder(os.Stdout)
	run := func(statement string) error {
		statement = strings.TrimSpace(statement)
		if statement == "" {
			return nil
		}
		if !returnsRows(statement) {
			return db.Exec(ctx, statement)
		}
		return db.Query(statement).ForEach(ctx, func(row *value.Object) error {
			return out.Encode(row)
		})
	}

	if flag.NArg() > 0 {
		for _, statement := range flag.Args() {
			if err := run(statement); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", statement, err)
				os.Exit(1)
			}
		}
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	failed := false
	for scanner.Scan() {
		if err := run(scanner.Text()); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			failed = true
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Fatal("failed to read statements", zap.Error(err))
	}
	if failed {
		os.Exit(1)
	}
}

func openEngine(ctx context.Context, kind, wasmLocation, dbPath string, logger *zap.Logger) (*session.Engine, error) {
	switch kind {
	case "native":
		opts := []sqliteengine.Option{sqliteengine.WithLogger(logger)}
		if dbPath != "" {
			opts = append(opts, sqliteengine.WithDSN(dbPath))
		}
		return session.NewEngine(sqliteengine.New(opts...), session.WithLogger(logger)), nil
	case "wasm":
		opts := []session.Option{
			session.WithModuleLocation(wasmLocation),
			session.WithLogger(logger),
		}
		if dbPath != "" {
			storage, err := sqlx.ConnectContext(ctx, "sqlite3", dbPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open %s: %w", dbPath, err)
			}
			opts = append(opts, session.WithStorage(storage))
		}
		return session.Initialize(ctx, opts...)
	}
	return nil, fmt.Errorf("unknown engine %q", kind)
}

func returnsRows(statement string) bool {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "PRAGMA", "EXPLAIN", "VALUES":
		return true
	}
	return false
}
