// Package fakepg provides stand-in initdb and postgres executables for
// tests that exercise the full supervisor lifecycle on machines without a
// PostgreSQL installation.
//
// Install links the running test binary under the names initdb and
// postgres; a TestMain that calls Main first turns those invocations into
// the fakes. The fake server listens on the requested TCP port and socket
// directory and honors SIGTERM. Its behavior is switched with a server
// setting:
//
//	-c fakepg.mode=listen       (default) accept connections until SIGTERM
//	-c fakepg.mode=crash        print a FATAL line and exit 1
//	-c fakepg.mode=hang         never listen; exit on SIGTERM
//	-c fakepg.mode=ignore-term  listen and ignore SIGTERM
//
// The fake initdb exits with the code given by --fakepg-exit=N when present.
package fakepg
