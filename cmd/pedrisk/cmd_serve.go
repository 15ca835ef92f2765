package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayemaqu/pedrisk/internal/events"
	"github.com/ayemaqu/pedrisk/internal/redact"
	"github.com/ayemaqu/pedrisk/internal/server"
	"github.com/ayemaqu/pedrisk/internal/telemetry"
	"github.com/ayemaqu/pedrisk/internal/variant"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load every configured variant and serve predictions over HTTP",
	Long: `Loads every configured variant before listening. Any artifact that is
missing, corrupt or inconsistent with its metadata stops startup.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "HTTP listen address (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := cfg.Server.Addr
	if serveFlags.addr != "" {
		addr = serveFlags.addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  "pedrisk",
		Version:  version,
	})
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	sinks, err := events.NewSinks(cfg.Events.Sinks)
	if err != nil {
		return err
	}
	opts := variant.Options{Telemetry: tp}
	var emitter *events.Emitter
	if len(sinks) > 0 {
		emitter = events.NewEmitter(events.EmitterConfig{
			QueueSize:       cfg.Events.QueueSize,
			Workers:         cfg.Events.Workers,
			ShutdownTimeout: time.Duration(cfg.Events.ShutdownTimeoutMs) * time.Millisecond,
		}, sinks)
		opts.Emitter = emitter
	} else {
		opts.Emitter = events.LogEmitter{}
	}

	loader, err := newLoader(cfg.Artifacts)
	if err != nil {
		return err
	}
	defer loader.Close()
	opts.Loader = loader

	reg, err := variant.Build(ctx, cfg.Variants, opts)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	srv := server.New(cfg.Server, reg)
	err = srv.Start(ctx, addr)
	if emitter != nil {
		emitter.Close(context.Background())
		s := emitter.Stats()
		redact.Logf("events: enqueued=%d dropped=%d", s.Enqueued, s.Dropped)
	}
	return err
}
