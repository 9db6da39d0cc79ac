// Package sentinel provides an immutable error type for sentinel error declarations.
//
// Sentinel errors declared with errors.New are mutable variables that consumers
// can reassign. This package provides Error, a string-based error type that can
// be declared as a const, making sentinel errors truly immutable while remaining
// compatible with errors.Is for wrapped error chain comparison.
// Typed errors elsewhere in the module return these constants from Unwrap so
// callers can classify failures with errors.Is.
package sentinel
