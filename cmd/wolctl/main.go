package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wolman/go-client/internal/api"
	"wolman/go-client/internal/config"
	"wolman/go-client/internal/crypto"
	"wolman/go-client/internal/platform/metrics"
	"wolman/go-client/internal/platform/privacylog"
	"wolman/go-client/internal/platform/ratelimiter"
	"wolman/go-client/internal/securestore"
	"wolman/go-client/internal/session"
	"wolman/go-client/pkg/models"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const usage = `wolctl - wake-on-LAN manager client

Usage: wolctl [flags] <command> [args]

Commands:
  login <username>        authenticate and establish session keys
  resume                  revive a persisted session after restart
  status                  print the current session snapshot
  logout                  end the session and wipe stored credentials
  refresh-key             re-fetch the server public key
  scan                    list devices on the server's network
  wake <mac>              send a wake-on-LAN signal
  ping <hostname>         ping a device through the server
  up <hostname>           check whether a device answers
  https <hostname>        check HTTPS availability of a device
  shell <host> <command>  run a shell command on a device over SSH
  my-key                  show the server's record of the registered key
  keys save <name>        store SSH key material (reads from stdin)
  keys list               list stored SSH key references
  keys show <id>          print stored key material (presence-gated)
  keys delete <id>        remove stored key material
`

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	serverURL := flag.String("server", "", "Server base URL override")
	storeDir := flag.String("store-dir", "", "Secret storage directory override")
	metricsAddr := flag.String("metrics-addr", "", "Expose Prometheus metrics on this address (optional)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if *showVersion {
		fmt.Printf("wolctl version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(privacylog.WrapHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	slog.SetDefault(logger)

	cfg := config.LoadFromPath(*configPath)
	if *serverURL != "" {
		cfg.Server.BaseURL = *serverURL
	}
	if *storeDir != "" {
		cfg.Storage.Dir = *storeDir
	}
	if cfg.Storage.Secret == "" {
		fmt.Fprintln(os.Stderr, "wolctl: no storage secret configured (set storage.secret or WOLCTL_STORE_SECRET)")
		os.Exit(1)
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, args); err != nil {
		logger.Error("command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	store, err := securestore.Open(cfg.Storage.Dir, cfg.Storage.Secret,
		securestore.WithPresenceVerifier(stdinPresence{}),
		securestore.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open secret store: %w", err)
	}

	transport := api.NewClient(cfg.Server.BaseURL, cfg.Server.RequestTimeout, logger)
	ctrl := session.NewController(store, crypto.NewHybridEngine(), transport,
		session.WithLogger(logger),
		session.WithLoginLimiter(ratelimiter.New(cfg.Session.LoginRatePerMin, cfg.Session.LoginBurst, time.Hour)))
	sess := session.NewAuthSession(ctrl, cfg.Session.MonitorInterval,
		session.WithSessionLogger(logger))

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		if len(rest) != 1 {
			return fmt.Errorf("usage: wolctl login <username>")
		}
		return cmdLogin(ctx, sess, rest[0])
	case "resume":
		ok, err := sess.Resume(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no resumable session")
		}
		return printJSON(sess.Snapshot())
	case "status":
		// Report stored state without touching the network.
		snap := sess.Snapshot()
		if !snap.IsAuthenticated && ctrl.HasStoredSession() {
			fmt.Fprintln(os.Stderr, "stored session present; run 'wolctl resume'")
		}
		return printJSON(snap)
	case "logout":
		sess.Logout()
		fmt.Println("logged out")
		return nil
	}

	// Everything below needs live credentials.
	if ctrl.HasStoredSession() {
		if _, err := sess.Resume(ctx); err != nil {
			return err
		}
	}

	switch cmd {
	case "refresh-key":
		if err := sess.RefreshServerKey(ctx); err != nil {
			return err
		}
		return printJSON(sess.Snapshot())
	case "scan":
		devices, err := ctrl.ScanDevices(ctx)
		if err != nil {
			return err
		}
		return printJSON(devices)
	case "wake":
		if len(rest) != 1 {
			return fmt.Errorf("usage: wolctl wake <mac>")
		}
		if !models.ValidMACAddress(rest[0]) {
			return fmt.Errorf("invalid MAC address %q", rest[0])
		}
		resp, err := ctrl.Wake(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(resp)
	case "ping":
		return hostnameCommand(rest, "ping", func(h string) (any, error) { return ctrl.Ping(ctx, h) })
	case "up":
		return hostnameCommand(rest, "up", func(h string) (any, error) { return ctrl.DeviceUp(ctx, h) })
	case "https":
		return hostnameCommand(rest, "https", func(h string) (any, error) { return ctrl.CheckHTTPS(ctx, h) })
	case "shell":
		return cmdShell(ctx, ctrl, rest)
	case "my-key":
		resp, err := ctrl.MyKey(ctx)
		if err != nil {
			return err
		}
		return printJSON(resp)
	case "keys":
		return cmdKeys(ctx, store, rest)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdLogin(ctx context.Context, sess *session.AuthSession, username string) error {
	if !models.ValidUsername(username) {
		return fmt.Errorf("invalid username %q", username)
	}
	password, err := promptLine("Password: ")
	if err != nil {
		return err
	}
	if !models.ValidPassword(password) {
		return fmt.Errorf("password does not meet requirements")
	}
	if err := sess.Login(ctx, username, password); err != nil {
		return err
	}
	return printJSON(sess.Snapshot())
}

func cmdShell(ctx context.Context, ctrl *session.Controller, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: wolctl shell <host> <command...>")
	}
	host := args[0]
	if !models.ValidHostname(host) {
		return fmt.Errorf("invalid hostname %q", host)
	}
	resp, err := ctrl.ShellCommand(ctx, models.ShellCommandRequest{
		Host:    host,
		Port:    22,
		User:    os.Getenv("USER"),
		Command: strings.Join(args[1:], " "),
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func cmdKeys(ctx context.Context, store *securestore.Store, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: wolctl keys <save|list|show|delete>")
	}
	switch args[0] {
	case "save":
		if len(args) != 2 {
			return fmt.Errorf("usage: wolctl keys save <name>")
		}
		material, err := readAll(os.Stdin)
		if err != nil {
			return err
		}
		ref, err := store.SaveNamedKey(args[1], material)
		if err != nil {
			return err
		}
		return printJSON(ref)
	case "list":
		refs, err := store.ListNamedKeys()
		if err != nil {
			return err
		}
		return printJSON(refs)
	case "show":
		if len(args) != 2 {
			return fmt.Errorf("usage: wolctl keys show <id>")
		}
		key, err := store.GetNamedKey(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Print(key.Secret)
		return nil
	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("usage: wolctl keys delete <id>")
		}
		return store.DeleteNamedKey(args[1])
	default:
		return fmt.Errorf("unknown keys subcommand %q", args[0])
	}
}

func hostnameCommand(args []string, name string, call func(string) (any, error)) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: wolctl %s <hostname>", name)
	}
	if !models.ValidHostname(args[0]) {
		return fmt.Errorf("invalid hostname %q", args[0])
	}
	resp, err := call(args[0])
	if err != nil {
		return err
	}
	return printJSON(resp)
}

// stdinPresence asks the operator to confirm before gated key material
// is released.
type stdinPresence struct{}

func (stdinPresence) Verify(ctx context.Context, reason string) error {
	answer, err := promptLine(fmt.Sprintf("Confirm %s [y/N]: ", reason))
	if err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(answer), "y") {
		return fmt.Errorf("confirmation declined")
	}
	return nil
}

func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readAll(f *os.File) (string, error) {
	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no key material on stdin")
	}
	return b.String(), nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics listener starting", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener stopped", "error", err)
	}
}
