package fakepg

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
)

// ModeSetting is the server setting that selects the fake server behavior.
const ModeSetting = "fakepg.mode"

// Fake server behaviors.
const (
	ModeListen     = "listen"
	ModeCrash      = "crash"
	ModeHang       = "hang"
	ModeIgnoreTerm = "ignore-term"
)

// ExitFlag makes the fake initdb exit with the given code.
const ExitFlag = "--fakepg-exit="

// Main runs the fake matching the executable name and exits. It returns
// immediately when the binary was started under any other name.
func Main() {
	switch filepath.Base(os.Args[0]) {
	case "initdb":
		os.Exit(runInitDB(os.Args[1:]))
	case "postgres", "postmaster":
		os.Exit(runServer(os.Args[1:]))
	}
}

// Install links the running executable as initdb and postgres in a fresh
// temporary directory and returns that directory.
func Install(tb testing.TB) string {
	tb.Helper()
	self, err := os.Executable()
	if err != nil {
		tb.Fatalf("fakepg: locate test binary: %v", err)
	}
	dir := tb.TempDir()
	for _, name := range []string{"initdb", "postgres"} {
		if err := os.Symlink(self, filepath.Join(dir, name)); err != nil {
			tb.Fatalf("fakepg: link %s: %v", name, err)
		}
	}
	return dir
}

func runInitDB(args []string) int {
	var dataDir string
	exitCode := 0
	for i := 0; i < len(args); i++ {
		switch a := args[i]; {
		case a == "-D" && i+1 < len(args):
			i++
			dataDir = args[i]
		case strings.HasPrefix(a, ExitFlag):
			n, err := strconv.Atoi(strings.TrimPrefix(a, ExitFlag))
			if err != nil {
				fmt.Fprintf(os.Stderr, "initdb: invalid %s value\n", ExitFlag)
				return 2
			}
			exitCode = n
		}
	}
	if exitCode != 0 {
		fmt.Fprintf(os.Stderr, "initdb: error: simulated failure (exit %d)\n", exitCode)
		return exitCode
	}
	if dataDir == "" {
		fmt.Fprintln(os.Stderr, "initdb: error: no data directory specified")
		return 1
	}
	if entries, err := os.ReadDir(dataDir); err == nil && len(entries) > 0 {
		fmt.Fprintf(os.Stderr, "initdb: error: directory %q exists but is not empty\n", dataDir)
		return 1
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "initdb: error: could not create directory %q: %v\n", dataDir, err)
		return 1
	}
	if err := os.WriteFile(filepath.Join(dataDir, "PG_VERSION"), []byte("16\n"), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "initdb: error: %v\n", err)
		return 1
	}
	fmt.Println("Success. You can now start the database server.")
	return 0
}

type serverArgs struct {
	dataDir   string
	host      string
	port      string
	socketDir string
	settings  map[string]string
}

func parseServerArgs(args []string) serverArgs {
	s := serverArgs{settings: map[string]string{}}
	for i := 0; i < len(args); i++ {
		if i+1 >= len(args) {
			break
		}
		switch args[i] {
		case "-D":
			s.dataDir = args[i+1]
		case "-h":
			s.host = args[i+1]
		case "-p":
			s.port = args[i+1]
		case "-k":
			s.socketDir = args[i+1]
		case "-c":
			if k, v, ok := strings.Cut(args[i+1], "="); ok {
				s.settings[k] = v
			}
		default:
			continue
		}
		i++
	}
	return s
}

func runServer(args []string) int {
	s := parseServerArgs(args)
	mode := s.settings[ModeSetting]
	if mode == "" {
		mode = ModeListen
	}

	if _, err := os.Stat(filepath.Join(s.dataDir, "PG_VERSION")); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL:  %q is not a valid data directory\n", s.dataDir)
		return 1
	}

	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, syscall.SIGTERM, syscall.SIGINT)

	switch mode {
	case ModeCrash:
		fmt.Fprintln(os.Stderr, "FATAL:  simulated startup crash")
		return 1
	case ModeHang:
		fmt.Fprintln(os.Stderr, "LOG:  starting, never listening")
		<-terminate
		return 0
	}

	tcp, err := net.Listen("tcp", net.JoinHostPort(s.host, s.port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL:  could not bind: %v\n", err)
		return 1
	}
	defer func() { _ = tcp.Close() }()
	go acceptAndClose(tcp)

	if s.socketDir != "" {
		sock, err := net.Listen("unix", filepath.Join(s.socketDir, ".s.PGSQL."+s.port))
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL:  could not create Unix socket: %v\n", err)
			return 1
		}
		defer func() { _ = sock.Close() }()
		go acceptAndClose(sock)
	}

	fmt.Fprintln(os.Stderr, "LOG:  database system is ready to accept connections")

	if mode == ModeIgnoreTerm {
		signal.Reset(syscall.SIGTERM)
		signal.Ignore(syscall.SIGTERM)
		for {
			<-terminate
		}
	}
	<-terminate
	fmt.Fprintln(os.Stderr, "LOG:  received shutdown request")
	return 0
}

func acceptAndClose(l net.Listener) {
	for {
		c, err := l.Accept()
		if err != nil {
			return
		}
		_ = c.Close()
	}
}
