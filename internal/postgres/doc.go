// Package postgres manages the database server child process: it launches
// the server in the foreground with output redirected to the instance log,
// polls the TCP port until connections are accepted, and stops the server
// with the terminate-poll-kill sequence from package process.
package postgres
