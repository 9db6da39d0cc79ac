package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/giantswarm/pgtestenv"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// envPrefix namespaces environment variables: --base-dir is read from
// PGTESTENV_BASE_DIR.
const envPrefix = "pgtestenv"

// newRootCmd builds the command tree. Each call returns an independent tree
// with its own viper instance.
func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "pgtestenv",
		Short: "throwaway PostgreSQL servers for tests",
		Long: fmt.Sprintf(`pgtestenv (%s)

Starts a private PostgreSQL server in a temporary directory, prints how to
reach it, and removes everything again on exit. Flags can also be set through
environment variables named PGTESTENV_<FLAG> (e.g. PGTESTENV_BASE_DIR), or in
.env and .env.local files in the working directory.`, Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			initConfig(v)
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return setupLogging(v.GetString("log-level"))
		},
	}

	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(v), newPurgeCmd(v), newVersionCmd())
	return root
}

// initConfig loads env files and wires environment variables into v.
func initConfig(v *viper.Viper) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// setupLogging installs a text handler on stderr at level for both the
// default logger and pgtestenv.
func setupLogging(levelStr string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	pgtestenv.SetLogger(slog.Default().With("component", "pgtestenv"))
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of pgtestenv",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pgtestenv %s\n", Version)
		},
	}
}
