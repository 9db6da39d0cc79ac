//go:build integration

package pgtest_test

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/pgtestenv"
	"github.com/giantswarm/pgtestenv/pgtest"
)

func TestIntegration_QueryRoundTrip(t *testing.T) {
	t.Parallel()

	inst := pgtest.New(t)
	db := pgtest.Open(t, inst)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := db.ExecContext(ctx, `CREATE TABLE items (id serial PRIMARY KEY, name text NOT NULL)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO items (name) VALUES ($1), ($2)`, "a", "b")
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM items`).Scan(&count))
	require.Equal(t, 2, count)

	var sum int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT 1+1`).Scan(&sum))
	require.Equal(t, 2, sum)

	var user string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT current_user`).Scan(&user))
	require.Equal(t, inst.User(), user)
}

func TestIntegration_PgxConnect(t *testing.T) {
	t.Parallel()

	inst := pgtest.New(t)
	conn := pgtest.Connect(t, inst)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var version string
	require.NoError(t, conn.QueryRow(ctx, `SHOW server_version`).Scan(&version))
	require.NotEmpty(t, version)

	var port string
	require.NoError(t, conn.QueryRow(ctx, `SHOW port`).Scan(&port))
	require.Equal(t, strconv.Itoa(inst.Port()), port)
}

func TestIntegration_UnixSocket(t *testing.T) {
	t.Parallel()

	inst := pgtest.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := pgx.ParseConfig(inst.ConnString())
	require.NoError(t, err)
	cfg.Host = inst.SocketDir()

	conn, err := pgx.ConnectConfig(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = conn.Close(context.Background()) }()
	require.NoError(t, conn.Ping(ctx))
}

func TestIntegration_ConcurrentInstances(t *testing.T) {
	t.Parallel()

	const n = 3
	instances := make([]pgtestenv.Instance, n)

	g, ctx := errgroup.WithContext(context.Background())
	for idx := range n {
		g.Go(func() error {
			inst, err := pgtestenv.New(ctx, pgtestenv.WithBaseDir(t.TempDir()))
			if err != nil {
				return err
			}
			instances[idx] = inst
			return nil
		})
	}
	err := g.Wait()
	for _, inst := range instances {
		if inst != nil {
			t.Cleanup(inst.Stop)
		}
	}
	if errors.Is(err, pgtestenv.ErrBinaryNotFound) {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, inst := range instances {
		require.False(t, seen[inst.Port()], "port %d shared", inst.Port())
		seen[inst.Port()] = true

		conn := pgtest.Connect(t, inst)
		require.NoError(t, conn.Ping(context.Background()))
	}
}

func TestIntegration_StopReleasesEverything(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inst, err := pgtestenv.New(ctx, pgtestenv.WithBaseDir(t.TempDir()))
	if errors.Is(err, pgtestenv.ErrBinaryNotFound) {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	require.NoError(t, err)

	pid := inst.PID()
	require.Positive(t, pid)

	inst.Stop()

	_, err = pgx.Connect(ctx, inst.ConnString())
	require.Error(t, err)
	_, statErr := os.Stat(inst.RootDir())
	require.ErrorIs(t, statErr, os.ErrNotExist)
	require.Error(t, syscall.Kill(pid, 0), "server process %d still alive", pid)
}

func TestIntegration_InitDBFailureKeepsLog(t *testing.T) {
	t.Parallel()

	_, err := pgtestenv.New(context.Background(),
		pgtestenv.WithBaseDir(t.TempDir()),
		pgtestenv.WithInitDBArgs("--no-such-initdb-flag"))
	if errors.Is(err, pgtestenv.ErrBinaryNotFound) {
		t.Skipf("PostgreSQL not available: %v", err)
	}

	var initErr *pgtestenv.InitFailedError
	require.ErrorAs(t, err, &initErr)
	require.NotZero(t, initErr.ExitCode)
	require.True(t, strings.Contains(initErr.Output, "no-such-initdb-flag"), initErr.Output)
}
