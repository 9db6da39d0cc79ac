// Package workspace provisions the private on-disk area of one database
// instance: a root directory holding the data directory, the server log and
// a lock file, plus a short-path socket directory when the root path is too
// long for a Unix-domain socket.
//
// The lock file is held with an exclusive flock for the lifetime of the
// workspace. PurgeStale uses it to tell abandoned workspaces (left by a
// killed process) from live ones.
package workspace
