package pgtest

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/giantswarm/pgtestenv"
)

// RequireBinariesEnv makes New fail instead of skip when PostgreSQL is not
// installed.
const RequireBinariesEnv = "PGTESTENV_REQUIRE_BINARIES"

// startTimeout bounds New, covering initdb and the readiness wait.
const startTimeout = 2 * time.Minute

// requireBinaries reports whether RequireBinariesEnv is set to a true value.
func requireBinaries() bool {
	v, err := strconv.ParseBool(os.Getenv(RequireBinariesEnv))
	return err == nil && v
}

// New starts an instance for the calling test and stops it when the test
// and its subtests finish. It skips the test when initdb or postgres cannot
// be found, unless RequireBinariesEnv is set, and fails it on any other
// error.
//
//nolint:ireturn // Returns the public Instance interface.
func New(tb testing.TB, opts ...pgtestenv.Option) pgtestenv.Instance {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	inst, err := pgtestenv.New(ctx, opts...)
	if err != nil {
		if errors.Is(err, pgtestenv.ErrBinaryNotFound) && !requireBinaries() {
			tb.Skipf("PostgreSQL not available: %v", err)
		}
		tb.Fatalf("start postgres: %v", err)
	}
	tb.Cleanup(inst.Stop)
	return inst
}

// Open returns a database/sql handle backed by the pgx driver, closed when
// the test finishes.
func Open(tb testing.TB, inst pgtestenv.Instance) *sql.DB {
	tb.Helper()

	db, err := sql.Open("pgx", inst.ConnString())
	if err != nil {
		tb.Fatalf("open database: %v", err)
	}
	tb.Cleanup(func() {
		if err := db.Close(); err != nil {
			tb.Logf("close database: %v", err)
		}
	})
	return db
}

// Connect returns a native pgx connection, closed when the test finishes.
func Connect(tb testing.TB, inst pgtestenv.Instance) *pgx.Conn {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, inst.ConnString())
	if err != nil {
		tb.Fatalf("connect: %v", err)
	}
	tb.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := conn.Close(closeCtx); err != nil {
			tb.Logf("close connection: %v", err)
		}
	})
	return conn
}
