// Package main implements a demo wiring of the systems-toolbox component
// runtime: a pinger and a ponger exchanging messages, with the combined
// firehose stream served to WebSocket clients. The manual splicing below
// stands in for the switchboard, which is a separate concern.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/clyfe/systems-toolbox/channel"
	"github.com/clyfe/systems-toolbox/component"
	"github.com/clyfe/systems-toolbox/config"
	"github.com/clyfe/systems-toolbox/message"
	"github.com/clyfe/systems-toolbox/metric"
	"github.com/clyfe/systems-toolbox/relay"
)

const appName = "systems-toolbox-demo"

var (
	pingReq = message.Type{Domain: "ping", Name: "req"}
	pongRes = message.Type{Domain: "pong", Name: "res"}
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if cliCfg.ShowVersion {
		fmt.Printf("%s %s\n", appName, component.Version)
		return nil
	}

	cfg := config.Default()
	if cliCfg.ConfigPath != "" {
		loaded, err := config.Load(cliCfg.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}
	if cliCfg.MetricsPort > 0 {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = cliCfg.MetricsPort
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	var registry *metric.MetricsRegistry
	if cfg.Metrics.Enabled {
		registry = metric.NewMetricsRegistry()
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() { _ = server.Stop() }()
		logger.Info("Metrics server listening", "address", server.Address())
	}

	pinger, ponger, err := buildComponents(cfg, logger, registry)
	if err != nil {
		return err
	}
	defer pinger.Shutdown()
	defer ponger.Shutdown()

	streamer, err := startStreamer(cfg, logger, registry)
	if err != nil {
		return err
	}
	if streamer != nil {
		defer func() { _ = streamer.Stop(5 * time.Second) }()
	}

	wire(pinger, ponger, streamer)

	// All pipes are in place; release buffered emissions
	pinger.SystemReady()
	ponger.SystemReady()

	logger.Info("Demo running; pinger and ponger wired", "version", component.Version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", "signal", sig.String())
	return nil
}

// buildComponents constructs the demo pair: a pinger that emits a ping/req
// every second from state-owned machinery, and a ponger that answers and
// counts.
func buildComponents(cfg *config.Config, logger *slog.Logger,
	registry *metric.MetricsRegistry) (*component.Component, *component.Component, error) {

	pinger, err := component.New(component.Deps{
		ID: "pinger",
		StateFn: func(emit component.EmitFn) component.StateResult {
			stop := make(chan struct{})
			go func() {
				ticker := time.NewTicker(time.Second)
				defer ticker.Stop()
				n := 0
				for {
					select {
					case <-stop:
						return
					case <-ticker.C:
						n++
						emit(message.New(pingReq, map[string]any{"n": n}))
					}
				}
			}()
			return component.StateResult{
				State:    map[string]any{"pongs_seen": 0},
				Shutdown: func() { close(stop) },
			}
		},
		Handlers: map[message.Type]component.Handler{
			pongRes: func(ctx *component.Context) {
				ctx.State.Swap(func(current any) any {
					m := current.(map[string]any)
					return map[string]any{"pongs_seen": m["pongs_seen"].(int) + 1}
				})
			},
		},
		Opts:            componentOpts(cfg, "pinger"),
		Logger:          logger.With("cmp_id", "pinger"),
		MetricsRegistry: registry,
	})
	if err != nil {
		return nil, nil, err
	}

	ponger, err := component.New(component.Deps{
		ID: "ponger",
		StateFn: func(emit component.EmitFn) component.StateResult {
			return component.StateResult{State: map[string]any{"pings_seen": 0}}
		},
		Handlers: map[message.Type]component.Handler{
			pingReq: func(ctx *component.Context) {
				ctx.State.Swap(func(current any) any {
					m := current.(map[string]any)
					return map[string]any{"pings_seen": m["pings_seen"].(int) + 1}
				})
				ctx.Emit(message.New(pongRes, ctx.Payload))
			},
		},
		Opts:            componentOpts(cfg, "ponger"),
		Logger:          logger.With("cmp_id", "ponger"),
		MetricsRegistry: registry,
	})
	if err != nil {
		pinger.Shutdown()
		return nil, nil, err
	}

	return pinger, ponger, nil
}

func componentOpts(cfg *config.Config, name string) *component.Options {
	if cc, ok := cfg.Components[name]; ok {
		return cc.Options()
	}
	opts := component.DefaultOptions()
	opts.OutChan = channel.Fixed(8)
	opts.InChan = channel.Fixed(8)
	return opts
}

func startStreamer(cfg *config.Config, logger *slog.Logger,
	registry *metric.MetricsRegistry) (*relay.WebSocketStreamer, error) {

	if cfg.Firehose.WebSocket == nil {
		return nil, nil
	}

	streamer, err := relay.NewWebSocketStreamer(relay.WebSocketStreamerDeps{
		Addr:            cfg.Firehose.WebSocket.Addr,
		Path:            cfg.Firehose.WebSocket.Path,
		Logger:          logger,
		MetricsRegistry: registry,
	})
	if err != nil {
		return nil, err
	}
	if err := streamer.Initialize(); err != nil {
		return nil, err
	}
	if err := streamer.Start(context.Background()); err != nil {
		return nil, err
	}
	return streamer, nil
}

// wire splices the demo topology by hand: pinger requests flow to the
// ponger, replies flow back, and both firehose streams merge into the
// WebSocket streamer when one is configured.
func wire(pinger, ponger *component.Component, streamer *relay.WebSocketStreamer) {
	pingTap := channel.MustNew(channel.Fixed(8))
	pinger.OutPub().Sub(pingReq.Key(), pingTap)
	channel.Pipe(pingTap, ponger.InChan(), false)

	pongTap := channel.MustNew(channel.Fixed(8))
	ponger.OutPub().Sub(pongRes.Key(), pongTap)
	channel.Pipe(pongTap, pinger.InChan(), false)

	if streamer != nil {
		for _, cmp := range []*component.Component{pinger, ponger} {
			tap := channel.MustNew(channel.Sliding(16))
			cmp.FirehoseMult().Tap(tap)
			channel.Pipe(tap, streamer.Component().InChan(), false)
		}
	}
}
