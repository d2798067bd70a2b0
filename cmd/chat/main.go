package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/mentionchat/internal/composer"
	"github.com/Tyrowin/mentionchat/internal/config"
	"github.com/Tyrowin/mentionchat/internal/connection"
	"github.com/Tyrowin/mentionchat/internal/metrics"
	"github.com/Tyrowin/mentionchat/internal/notify"
	"github.com/Tyrowin/mentionchat/internal/observability"
	"github.com/Tyrowin/mentionchat/internal/server"
	"github.com/Tyrowin/mentionchat/internal/state"
	"github.com/Tyrowin/mentionchat/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mentionchat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", config.DefaultPath, "Path to config file")
	endpoint := flag.String("endpoint", "", "Chat endpoint (env: MENTIONCHAT_ENDPOINT)")
	retryDelay := flag.Int("retry-delay-ms", 0, "Delay between reconnect attempts in milliseconds")
	maxRetries := flag.Int("max-retries", 0, "Reconnect attempts before giving up (0 disables reconnecting)")
	nickname := flag.String("nick", "", "Your nickname, used for mention notifications")
	caret := flag.String("caret", "", "Caret policy after highlighting: end or preserve")
	notifyFlag := flag.Bool("notify", false, "Raise desktop notifications when you are mentioned")
	statePath := flag.String("state", "", "Path to the state database")
	logFile := flag.String("log-file", "", "Path to the log file")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Flags explicitly set on the command line win over file and env.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "endpoint":
			cfg.Endpoint = *endpoint
		case "retry-delay-ms":
			cfg.RetryDelayMS = *retryDelay
		case "max-retries":
			cfg.MaxRetries = *maxRetries
		case "nick":
			cfg.Nickname = *nickname
		case "caret":
			cfg.CaretPolicy = *caret
		case "notify":
			cfg.Notify = *notifyFlag
		case "state":
			cfg.StatePath = *statePath
		case "log-file":
			cfg.LogFile = *logFile
		case "log-level":
			cfg.LogLevel = *logLevel
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		}
	})
	if cfg, err = config.Sanitize(cfg); err != nil {
		return err
	}

	policy, err := composer.ParseCaretPolicy(cfg.CaretPolicy)
	if err != nil {
		return err
	}

	// The terminal belongs to the UI, so logs go to a file.
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logOut, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = logOut.Close() }()
	log := observability.Setup(observability.Options{Output: logOut, Level: cfg.LogLevel})

	st, err := state.Open(cfg.StatePath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if cfg.Nickname == "" {
		cfg.Nickname = st.LastNickname()
	} else if err := st.SetLastNickname(cfg.Nickname); err != nil {
		log.Warn("failed to save nickname", "error", err)
	}

	m := metrics.New()
	mgr := connection.New(connection.Options{
		Endpoint:   cfg.Endpoint,
		RetryDelay: cfg.RetryDelay(),
		MaxRetries: cfg.MaxRetries,
		Logger:     log,
		Metrics:    m,
	})

	model := tui.NewModel(tui.Options{
		Conn:        mgr,
		Prefs:       st,
		Notifier:    notify.New(cfg.Nickname, cfg.Notify, log),
		Theme:       st.Theme(),
		Nickname:    cfg.Nickname,
		CaretPolicy: policy,
		MaxRetries:  cfg.MaxRetries,
		Logger:      log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := mgr.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.MetricsAddr != "" {
		admin := server.CreateServer(cfg.MetricsAddr, server.MetricsRoutes(m))
		g.Go(func() error {
			return server.StartServer(admin)
		})
		g.Go(func() error {
			<-gctx.Done()
			return server.ShutdownServer(admin, server.ShutdownTimeout)
		})
	}

	if err := mgr.Connect(); err != nil {
		log.Error("initial connect failed", "error", err)
	}

	g.Go(func() error {
		defer cancel()
		defer mgr.Close()

		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(gctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("bubble tea: %w", err)
		}
		return nil
	})

	return g.Wait()
}
