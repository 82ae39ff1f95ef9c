package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"aksara/internal/client"
	"aksara/internal/config"
	"aksara/internal/logging"
	"aksara/internal/ui/admin"
	"aksara/internal/ui/authstate"
	"aksara/internal/ui/chat"
	"aksara/internal/ui/profile"
	"aksara/internal/ui/sidebar"
)

func main() {
	cfg := config.LoadClient()
	dummy := flag.Bool("dummy", cfg.DummyMode, "Use the in-memory backend instead of the API")
	apiURL := flag.String("api", cfg.APIBaseURL, "Base URL of the Aksara API")
	stateDir := flag.String("state-dir", cfg.StateDir, "Directory holding the saved session")
	debug := flag.Bool("debug", false, "Write a debug log to aksara.log in the state directory")
	temperature := flag.Float64("temp", chat.DefaultTemperature, "Sampling temperature (0..1)")
	maxTokens := flag.Int("max-tokens", chat.DefaultMaxTokens, "Maximum tokens per reply")
	flag.Parse()
	cfg.DummyMode = *dummy
	cfg.APIBaseURL = *apiURL
	cfg.StateDir = *stateDir

	logger := zap.NewNop()
	if *debug {
		if err := os.MkdirAll(cfg.StateDir, 0o700); err == nil {
			if l, err := logging.NewFile(filepath.Join(cfg.StateDir, "aksara.log")); err == nil {
				logger = l
			}
		}
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, logger, client.SendOptions{Temperature: *temperature, MaxTokens: *maxTokens})
	if err != nil {
		fmt.Fprintf(os.Stderr, "aksara: %v\n", err)
		os.Exit(1)
	}
	a.run(ctx)
}

type app struct {
	backend client.Backend
	auth    *authstate.Holder
	chat    *chat.Session
	history *sidebar.Sidebar
	admin   *admin.Dashboard
	profile *profile.Editor
	logger  *zap.Logger
	dummy   bool

	in    *bufio.Scanner
	route string

	title   func(a ...interface{}) string
	you     func(a ...interface{}) string
	ai      func(a ...interface{}) string
	faint   func(a ...interface{}) string
	warning func(a ...interface{}) string
}

func newApp(cfg config.ClientConfig, logger *zap.Logger, opts client.SendOptions) (*app, error) {
	a := &app{
		logger:  logger,
		dummy:   cfg.DummyMode,
		in:      bufio.NewScanner(os.Stdin),
		title:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		you:     color.New(color.FgGreen, color.Bold).SprintFunc(),
		ai:      color.New(color.FgCyan, color.Bold).SprintFunc(),
		faint:   color.New(color.Faint).SprintFunc(),
		warning: color.New(color.FgRed).SprintFunc(),
	}

	var store client.Store
	if cfg.DummyMode {
		store = client.NewMemoryStore()
		a.backend = client.NewDummy(client.DefaultDummyLatency)
	} else {
		fileStore, err := client.NewFileStore(cfg.StatePath())
		if err != nil {
			return nil, err
		}
		store = fileStore
		gateway := client.NewGateway(cfg.APIBaseURL, store, cfg.Timeout, logger)
		gateway.OnUnauthorized(func() {
			a.auth.Expire()
			a.chat.Clear()
			a.route = authstate.RouteLogin
		})
		a.backend = gateway
	}

	a.auth = authstate.New(a.backend, store, logger)
	a.chat = chat.New(a.backend, logger)
	a.chat.SetOptions(opts)
	a.history = sidebar.New(a.backend, logger)
	a.admin = admin.New(a.backend, logger)
	a.profile = profile.New(a.backend, a.auth, logger)
	a.route = a.auth.HomeRoute()
	return a, nil
}
