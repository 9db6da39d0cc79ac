package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/pgtestenv"
)

// Output formats for run without a command.
const (
	outputEnv  = "env"
	outputJSON = "json"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] [-- command [args...]]",
		Short: "Start a server, optionally for the lifetime of a command",
		Long: `Start a server and either run the given command with PGHOST, PGPORT,
PGUSER, PGDATABASE and DATABASE_URL set, stopping the server when it exits,
or print the connection details and keep the server up until interrupted.

The command's exit status becomes pgtestenv's exit status.`,
		Example: `  pgtestenv run -- go test ./...
  pgtestenv run --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := optionsFromConfig(v)
			if err != nil {
				return err
			}
			output := v.GetString("output")
			if output != outputEnv && output != outputJSON {
				return fmt.Errorf("invalid output %q: want %s or %s", output, outputEnv, outputJSON)
			}
			return run(cmd.Context(), cmd.OutOrStdout(), output, args, opts)
		},
	}

	f := cmd.Flags()
	f.String("host", pgtestenv.DefaultHost, "TCP listen address")
	f.Int("port", 0, "TCP listen port (default: a free port)")
	f.String("user", "", "database superuser; required when running as root (default: postgres)")
	f.String("postgres-home", "", "PostgreSQL installation prefix (default: $"+pgtestenv.HomeEnv+")")
	f.String("initdb", "", "initdb executable (default: search)")
	f.String("server", "", "postgres executable (default: search)")
	f.String("base-dir", "", "directory to create the workspace in (default: system temp dir)")
	f.Bool("keep", false, "keep the workspace after the server stops")
	f.Int("ready-attempts", pgtestenv.DefaultReadyAttempts, "readiness checks before giving up")
	f.Duration("ready-interval", pgtestenv.DefaultReadyInterval, "delay between readiness checks")
	f.Int("stop-attempts", pgtestenv.DefaultStopAttempts, "shutdown polls before SIGKILL")
	f.Duration("stop-interval", pgtestenv.DefaultStopInterval, "delay between shutdown polls")
	f.StringSlice("set", nil, "server setting as name=value, repeatable")
	f.StringSlice("initdb-arg", nil, "extra initdb argument, repeatable")
	f.StringP("output", "o", outputEnv, "format of the connection details without a command (env, json)")
	return cmd
}

// optionsFromConfig turns flag and environment values into New options.
// Unset values are omitted so the library defaults apply.
func optionsFromConfig(v *viper.Viper) ([]pgtestenv.Option, error) {
	var opts []pgtestenv.Option

	if s := v.GetString("host"); s != "" {
		opts = append(opts, pgtestenv.WithHost(s))
	}
	if port := v.GetInt("port"); port != 0 {
		if port < 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port %d", port)
		}
		opts = append(opts, pgtestenv.WithPort(port))
	}
	if s := v.GetString("user"); s != "" {
		opts = append(opts, pgtestenv.WithUser(s))
	}
	if s := v.GetString("postgres-home"); s != "" {
		opts = append(opts, pgtestenv.WithPostgresHome(s))
	}
	if s := v.GetString("initdb"); s != "" {
		opts = append(opts, pgtestenv.WithInitDBBinary(s))
	}
	if s := v.GetString("server"); s != "" {
		opts = append(opts, pgtestenv.WithServerBinary(s))
	}
	if s := v.GetString("base-dir"); s != "" {
		opts = append(opts, pgtestenv.WithBaseDir(s))
	}
	if v.GetBool("keep") {
		opts = append(opts, pgtestenv.WithKeepWorkspace())
	}

	readyAttempts, readyInterval := v.GetInt("ready-attempts"), v.GetDuration("ready-interval")
	if readyAttempts <= 0 || readyInterval <= 0 {
		return nil, fmt.Errorf("readiness budget must be positive, got %d x %s", readyAttempts, readyInterval)
	}
	opts = append(opts, pgtestenv.WithReadiness(readyAttempts, readyInterval))

	stopAttempts, stopInterval := v.GetInt("stop-attempts"), v.GetDuration("stop-interval")
	if stopAttempts <= 0 || stopInterval <= 0 {
		return nil, fmt.Errorf("shutdown budget must be positive, got %d x %s", stopAttempts, stopInterval)
	}
	opts = append(opts, pgtestenv.WithShutdown(stopAttempts, stopInterval))

	for _, kv := range v.GetStringSlice("set") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid server setting %q: want name=value", kv)
		}
		opts = append(opts, pgtestenv.WithServerSetting(name, value))
	}
	if args := v.GetStringSlice("initdb-arg"); len(args) > 0 {
		opts = append(opts, pgtestenv.WithInitDBArgs(args...))
	}

	return opts, nil
}

// run starts the server, then runs args as a child command or, without
// args, prints the connection details and waits for a signal.
func run(ctx context.Context, out io.Writer, output string, args []string, opts []pgtestenv.Option) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	inst, err := pgtestenv.New(ctx, opts...)
	if err != nil {
		return err
	}
	defer inst.Stop()

	if len(args) == 0 {
		if err := printDetails(out, output, inst); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}
	return runChild(ctx, inst, args)
}

// errServerExited reports that the server died while the child was running.
var errServerExited = errors.New("postgres exited while the command was running")

// runChild runs args with the instance environment. A signal is forwarded
// to the child as SIGTERM, and so is a server crash. The child's exit
// status is returned as an *exitCodeError.
func runChild(ctx context.Context, inst pgtestenv.Instance, args []string) error {
	g, gctx := errgroup.WithContext(ctx)

	child := exec.CommandContext(gctx, args[0], args[1:]...) //nolint:gosec // the command line is the user's
	child.Env = append(os.Environ(), inst.Env()...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	child.Cancel = func() error { return child.Process.Signal(syscall.SIGTERM) }
	child.WaitDelay = 10 * time.Second

	childDone := make(chan struct{})
	g.Go(func() error {
		defer close(childDone)
		err := child.Run()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if code := exitErr.ExitCode(); code >= 0 {
				return &exitCodeError{code: code}
			}
			return &exitCodeError{code: 128 + int(syscall.SIGTERM)}
		}
		return err
	})
	g.Go(func() error {
		select {
		case <-inst.Exited():
			return errServerExited
		case <-childDone:
			return nil
		}
	})
	return g.Wait()
}

// details is the JSON rendering of an instance.
type details struct {
	DSN        string         `json:"dsn"`
	User       string         `json:"user"`
	Password   string         `json:"password"`
	Attrs      map[string]any `json:"attrs"`
	ConnString string         `json:"conn_string"`
	Host       string         `json:"host"`
	Port       int            `json:"port"`
	PID        int            `json:"pid"`
	DataDir    string         `json:"data_dir"`
	SocketDir  string         `json:"socket_dir"`
	LogPath    string         `json:"log_path"`
}

func printDetails(out io.Writer, output string, inst pgtestenv.Instance) error {
	if output == outputJSON {
		d := inst.Descriptor()
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(details{
			DSN:        d.DSN,
			User:       d.User,
			Password:   d.Password,
			Attrs:      d.Attrs,
			ConnString: inst.ConnString(),
			Host:       inst.Host(),
			Port:       inst.Port(),
			PID:        inst.PID(),
			DataDir:    inst.DataDir(),
			SocketDir:  inst.SocketDir(),
			LogPath:    inst.LogPath(),
		})
	}
	for _, kv := range inst.Env() {
		k, val, _ := strings.Cut(kv, "=")
		if _, err := fmt.Fprintf(out, "export %s=%q\n", k, val); err != nil {
			return err
		}
	}
	return nil
}
