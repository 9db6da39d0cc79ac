// Package pgtest adapts pgtestenv to the testing package.
//
// Per-test instances:
//
//	func TestQuery(t *testing.T) {
//	    inst := pgtest.New(t)
//	    db := pgtest.Open(t, inst)
//	    // ...
//	}
//
// New stops the instance through t.Cleanup and skips the test when no
// PostgreSQL installation can be found. Set PGTESTENV_REQUIRE_BINARIES=1 in
// CI to turn the skip into a failure.
//
// One instance per test binary:
//
//	func TestMain(m *testing.M) {
//	    os.Exit(pgtest.RunMain(m))
//	}
//
// RunMain exports PGHOST, PGPORT, PGUSER, PGDATABASE and DATABASE_URL for
// the duration of m.Run, and Shared returns the instance.
package pgtest
