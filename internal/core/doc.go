// Package core provides the internal implementation of pgtestenv.
// It contains Instance, the supervisor that walks one disposable database
// server through resolve, provision, allocate, initialize, launch, and
// readiness, and later tears it down exactly once from the owning process.
// Config validation, the error kinds, and the package logger live here so
// the public package only re-exports them.
package core
