package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"corridorbots/pkg/bus"
	"corridorbots/pkg/config"
	"corridorbots/pkg/fleet"
	"corridorbots/pkg/gateway"
	"corridorbots/pkg/logger"
	"corridorbots/pkg/policy"
	"corridorbots/pkg/provider"
	"corridorbots/pkg/session"
	"corridorbots/pkg/transport/api"
	"corridorbots/pkg/transport/push"
	"corridorbots/pkg/typing"
	"corridorbots/pkg/ui/monitor"
)

const monitorEventBuffer = 256

var (
	monitorEnabled bool
	logFile        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every configured bot",
	Long:  "Logs every configured bot in, subscribes to its corridor snapshots and ticks the whole fleet until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := loadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		writer, closeWriter, err := logWriter()
		if err != nil {
			fmt.Printf("failed to open log file: %v\n", err)
			return
		}
		defer closeWriter()

		appLogger, err := logger.New(cfg.Logging, writer)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runBots(runCtx, cfg, appLogger); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.With("component", "cmd.run").Error("Run failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVarP(&monitorEnabled, "monitor", "m", false, "show the live fleet monitor")
	runCmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
}

// logWriter keeps logs off the terminal while the monitor owns it.
func logWriter() (io.Writer, func(), error) {
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		return file, func() { _ = file.Close() }, nil
	}
	if monitorEnabled {
		return io.Discard, func() {}, nil
	}

	return os.Stderr, func() {}, nil
}

// runBots wires the fleet and its optional status server and monitor, then
// blocks until ctx is done, the monitor quits or no bot could start.
func runBots(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	corridorAPI, err := api.New(cfg.Corridor)
	if err != nil {
		return fmt.Errorf("configure corridor api: %w", err)
	}

	dialer, err := push.NewDialer(cfg.Corridor.WSEndpoint, cfg.Corridor.RequestTimeout())
	if err != nil {
		return fmt.Errorf("configure push endpoint: %w", err)
	}

	client, err := newGenerator(cfg)
	if err != nil {
		return fmt.Errorf("initialize provider: %w", err)
	}
	var (
		gen    policy.Generator
		health gateway.HealthChecker
	)
	if client != nil {
		gen = client
		health = client
	}

	events := bus.NewMessageBus()
	defer events.Close()

	bots, err := buildBots(cfg, corridorAPI, session.PushConnector(dialer), gen, events, log)
	if err != nil {
		return err
	}

	f, err := fleet.New(cfg.Fleet.TickInterval(), bots, events, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return f.Run(gctx)
	})

	if cfg.Gateway.Enabled {
		svc, err := gateway.NewService(cfg.Gateway, f, health, log)
		if err != nil {
			return err
		}
		g.Go(func() error { return svc.Run(gctx) })
	}

	if monitorEnabled {
		sub, unsubscribe := events.SubscribeEvents(gctx, monitorEventBuffer)
		info := monitor.RuntimeInfo{Interval: cfg.Fleet.TickInterval()}
		if client != nil {
			info.Provider = cfg.LLM.Provider
			info.Model = cfg.LLM.Model
		}
		g.Go(func() error {
			defer cancel()
			defer unsubscribe()
			return monitor.Run(gctx, sub, info)
		})
	}

	log.With("component", "cmd.run").Info("Corridor bots started", "bots", len(bots), "llm", client != nil, "tick_interval", cfg.Fleet.TickInterval().String())
	return g.Wait()
}

// newGenerator returns nil when no bot can use the model.
func newGenerator(cfg *config.Config) (provider.Client, error) {
	if !cfg.UsesLLM() || !cfg.LLM.Enabled {
		return nil, nil
	}

	return provider.New(cfg.LLM)
}

func buildBots(cfg *config.Config, corridorAPI session.API, connect session.ConnectFunc, gen policy.Generator, events bus.Publisher, log *slog.Logger) ([]fleet.Bot, error) {
	bots := make([]fleet.Bot, 0, len(cfg.Bots))
	for _, cred := range cfg.Bots {
		p, err := policy.ForBot(cred, cfg, gen, rand.NewPCG(rand.Uint64(), rand.Uint64()), log)
		if err != nil {
			return nil, fmt.Errorf("configure policy for %s: %w", cred.Username, err)
		}

		sess, err := session.New(session.Options{
			Credential:      cred,
			Behavior:        cfg.Behavior,
			Typing:          typingOptions(cfg.Typing),
			MaxTextLength:   cfg.Typing.MaxTextLength,
			LeaveOnShutdown: cfg.Corridor.LeaveOnShutdown,
		}, session.Deps{
			API:     corridorAPI,
			Connect: connect,
			Policy:  p,
			Events:  events,
			Log:     log,
		})
		if err != nil {
			return nil, fmt.Errorf("configure session for %s: %w", cred.Username, err)
		}
		bots = append(bots, sess)
	}

	return bots, nil
}

func typingOptions(cfg config.TypingConfig) typing.Options {
	return typing.Options{
		ChunkSize:  cfg.ChunkSize,
		EraseStep:  time.Duration(cfg.EraseStepMs) * time.Millisecond,
		RevealStep: time.Duration(cfg.RevealStepMs) * time.Millisecond,
		FinalDelay: time.Duration(cfg.FinalDelayMs) * time.Millisecond,
	}
}
