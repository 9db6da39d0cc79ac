package pgtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/giantswarm/pgtestenv"
)

// LogLevelEnv selects the slog level installed by SetupLogging.
const LogLevelEnv = "PGTESTENV_LOG_LEVEL"

// shared is the instance started by RunMain.
var shared atomic.Pointer[sharedInstance]

type sharedInstance struct {
	pgtestenv.Instance
}

// Shared returns the instance started by RunMain, or nil outside RunMain.
//
//nolint:ireturn // Returns the public Instance interface.
func Shared() pgtestenv.Instance {
	if s := shared.Load(); s != nil {
		return s.Instance
	}
	return nil
}

// SetupLogging installs a text slog handler on stderr at the level named by
// LogLevelEnv (default INFO) and points pgtestenv at it.
func SetupLogging() {
	levelStr := os.Getenv(LogLevelEnv)
	if levelStr == "" {
		levelStr = "INFO"
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	pgtestenv.SetLogger(slog.Default().With("component", "pgtestenv"))
}

// RunMain starts one instance, exports its connection variables into the
// environment, runs the tests, and stops the instance. Use it from TestMain:
//
//	os.Exit(pgtest.RunMain(m))
//
// When PostgreSQL is not installed the tests run without an instance
// (Shared returns nil) unless RequireBinariesEnv is set. SIGINT and SIGTERM
// stop the instance before the process exits.
func RunMain(m *testing.M, opts ...pgtestenv.Option) int {
	inst, err := pgtestenv.New(context.Background(), opts...)
	switch {
	case err == nil:
	case errors.Is(err, pgtestenv.ErrBinaryNotFound) && !requireBinaries():
		fmt.Fprintf(os.Stderr, "pgtest: PostgreSQL not available, running without a shared instance: %v\n", err)
		return m.Run()
	default:
		fmt.Fprintf(os.Stderr, "pgtest: start postgres: %v\n", err)
		return 1
	}

	restore := exportEnv(inst.Env())
	shared.Store(&sharedInstance{Instance: inst})

	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			signal.Stop(sigCh) // a second signal force-kills
			fmt.Fprintf(os.Stderr, "\nReceived %s, stopping postgres...\n", sig)
			inst.Stop()
			os.Exit(1)
		case <-done:
			return
		}
	}()

	code := m.Run()

	signal.Stop(sigCh)
	close(done)
	shared.Store(nil)
	restore()
	inst.Stop()

	return code
}

// exportEnv sets every "KEY=value" pair and returns a function restoring
// the previous values.
func exportEnv(env []string) func() {
	type saved struct {
		key   string
		value string
		ok    bool
	}
	prev := make([]saved, 0, len(env))
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		old, ok := os.LookupEnv(k)
		prev = append(prev, saved{key: k, value: old, ok: ok})
		_ = os.Setenv(k, v)
	}
	return func() {
		for _, s := range prev {
			if s.ok {
				_ = os.Setenv(s.key, s.value)
			} else {
				_ = os.Unsetenv(s.key)
			}
		}
	}
}
