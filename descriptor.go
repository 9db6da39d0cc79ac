package pgtestenv

import (
	"net"
	"net/url"
	"strconv"
)

// Descriptor is everything a client needs to connect.
type Descriptor struct {
	DSN      string
	User     string
	Password string
	// Attrs are connection attributes; AutoCommit is always true.
	Attrs map[string]any
}

// formatDSN builds the "dbi:Pg:" connection string. host never contains
// ';' or '=' (rejected by config validation), so no quoting is needed.
func formatDSN(host string, port int) string {
	return "dbi:Pg:dbname=" + DefaultDatabase + ";host=" + host + ";port=" + strconv.Itoa(port)
}

// formatConnString builds a libpq URL. Trust authentication is used, so
// there is no password component.
func formatConnString(user, host string, port int) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(user),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + DefaultDatabase,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func newDescriptor(user, host string, port int) Descriptor {
	return Descriptor{
		DSN:      formatDSN(host, port),
		User:     user,
		Password: "",
		Attrs:    map[string]any{"AutoCommit": true},
	}
}

// formatEnv returns libpq environment variables for the instance.
func formatEnv(user, host string, port int) []string {
	return []string{
		"PGHOST=" + host,
		"PGPORT=" + strconv.Itoa(port),
		"PGUSER=" + user,
		"PGDATABASE=" + DefaultDatabase,
		"DATABASE_URL=" + formatConnString(user, host, port),
	}
}
