// Package pgtestenv starts throwaway PostgreSQL servers for tests.
//
// Each Instance owns a private workspace (data directory, log file and a
// Unix socket directory), a freshly initialized cluster, and one server
// process listening on a free TCP port. Stop terminates the server and
// removes the workspace.
//
// # Basic Usage
//
//	import "github.com/giantswarm/pgtestenv"
//
//	inst, err := pgtestenv.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Stop()
//
//	// import "github.com/jackc/pgx/v5"
//	conn, err := pgx.Connect(ctx, inst.ConnString())
//
// Inside tests prefer the pgtest package, which stops the instance through
// t.Cleanup and skips when no PostgreSQL installation is found.
//
// # Locating PostgreSQL
//
// The initdb and postgres executables are looked up in $POSTGRES_HOME/bin,
// $POSTGRES_HOME, every PATH entry, and finally the usual install
// locations of distribution packages. WithInitDBBinary and WithServerBinary
// bypass the search.
//
// # Running As Root
//
// The server refuses to run as root. When the calling process is root,
// WithUser must name an unprivileged OS account; initdb and the server run
// under that account and the workspace is handed to it.
//
// # Forked Processes
//
// Only the process that created an Instance can stop it. A child produced
// by fork that inherits the value gets a no-op Stop and leaves the parent's
// server alone.
package pgtestenv
