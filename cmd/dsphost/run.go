package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rakyll/portmidi"
	"go.uber.org/zap"

	"github.com/shaban/dsphost"
	"github.com/shaban/dsphost/control"
	"github.com/shaban/dsphost/discovery"
	"github.com/shaban/dsphost/logging"
)

// rediscoverInterval is how often the run loop consults the source watcher.
const rediscoverInterval = 2 * time.Second

func runCmd(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := configFlag(fs)
	fs.Parse(args)

	cfg, err := dsphost.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if lvl := os.Getenv("DSPHOST_LOG_LEVEL"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()

	if err := portaudio.Initialize(); err != nil {
		logger.Error("audio backend failed to initialize", zap.Error(err))
		return 1
	}
	defer portaudio.Terminate()

	host, err := dsphost.NewHost(cfg, logger)
	if err != nil {
		logger.Error("failed to create host", zap.Error(err))
		return 1
	}

	dispatcher := dsphost.NewDispatcher(host)
	if err := dispatcher.Start(); err != nil {
		logger.Error("failed to start dispatcher", zap.Error(err))
		return 1
	}
	defer dispatcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dispatcher.LoadModule(ctx); err != nil {
		logger.Error("module load failed", zap.Error(err))
		return 1
	}

	if cfg.Session != "" {
		if state, err := dsphost.LoadSession(cfg.Session); err == nil {
			host.RestoreSession(state)
			logger.Info("session restored", zap.String("path", cfg.Session))
		} else if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("session restore failed", zap.Error(err))
		}
	}

	// The hub loop always runs so metering broadcasts fan out (to zero
	// clients when the socket is disabled) instead of piling up.
	go host.Hub().Run(ctx)
	if cfg.Status.Enabled {
		go serveStatus(ctx, cfg.Status.Addr, host, logger)
	}

	if cfg.MIDI.Enabled {
		if err := startMIDI(ctx, cfg, host, logger); err != nil {
			logger.Warn("midi control unavailable", zap.Error(err))
		} else {
			defer portmidi.Terminate()
		}
	}

	if w := host.Watcher(); w != nil {
		go w.Run(ctx)
		go rediscoverLoop(ctx, w, host, dispatcher, logger)
	}

	if err := dispatcher.StartEngine(); err != nil {
		logger.Error("engine start failed", zap.Error(err))
		return 1
	}
	logger.Info("host running", zap.String("id", host.ID.String()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down")

	if cfg.Session != "" {
		if err := host.SaveSession(cfg.Session); err != nil {
			logger.Warn("session save failed", zap.Error(err))
		}
	}
	cancel()
	if err := dispatcher.Shutdown(); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
		return 1
	}
	return 0
}

// serveStatus mounts the websocket hub and a JSON snapshot endpoint.
func serveStatus(ctx context.Context, addr string, host *dsphost.Host, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/ws", host.Hub())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, host.Status())
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Info("status socket listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("status server failed", zap.Error(err))
	}
}

func startMIDI(ctx context.Context, cfg *dsphost.Config, host *dsphost.Host, logger *zap.Logger) error {
	if err := portmidi.Initialize(); err != nil {
		return err
	}
	surface, err := control.NewSurface(host.Bridge(), cfg.MIDI.Mappings, logger.Named("midi"))
	if err != nil {
		portmidi.Terminate()
		return err
	}
	pump, err := control.OpenPump(surface, cfg.MIDI.Device, logger.Named("midi"))
	if err != nil {
		portmidi.Terminate()
		return err
	}
	go pump.Run(ctx)
	logger.Info("midi control active", zap.Int("mappings", surface.Mappings()))
	return nil
}

// rediscoverLoop reloads the module when the source watcher reports edits.
// Reload failures are pushed to status clients; nobody is watching the log
// while editing module sources.
func rediscoverLoop(ctx context.Context, w *discovery.Watcher, host *dsphost.Host, dispatcher *dsphost.Dispatcher, logger *zap.Logger) {
	ticker := time.NewTicker(rediscoverInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.Dirty() {
				continue
			}
			logger.Info("module sources changed, reloading")
			if err := dispatcher.ReloadModule(ctx); err != nil {
				logger.Error("reload failed, previous module stays loaded", zap.Error(err))
				host.Hub().BroadcastError("reload", err.Error())
				w.Clear() // avoid a rebuild storm on a broken tree
			}
		}
	}
}
