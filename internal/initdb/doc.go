// Package initdb creates a fresh database cluster by running the initdb
// tool against an empty data directory. The tool's output is appended to the
// instance log and kept for the error report when it fails.
package initdb
