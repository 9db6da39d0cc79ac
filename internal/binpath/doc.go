// Package binpath locates the PostgreSQL cluster-initialization tool
// (initdb) and the server executable (postgres, or the legacy postmaster
// name) on the local machine.
//
// The search order is: explicit overrides, $POSTGRES_HOME/bin,
// $POSTGRES_HOME, every PATH entry, then the well-known installation
// directories of common packagers, newest major version first.
package binpath
