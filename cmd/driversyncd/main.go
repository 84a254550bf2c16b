// driversyncd is the localhost sync daemon behind the driver-portal UI
// shell. It owns the durable action queue, drains it against the portal
// backend, and pushes queue/sync/banner events to the UI over REST and
// WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baltiqcast/driversync/cmd/driversyncd/handlers"
	"github.com/baltiqcast/driversync/internal/config"
	"github.com/baltiqcast/driversync/internal/logging"
	"github.com/baltiqcast/driversync/internal/queue"
	"github.com/baltiqcast/driversync/internal/store"
	syncpkg "github.com/baltiqcast/driversync/internal/sync"
	"github.com/baltiqcast/driversync/internal/watch"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "driversyncd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(os.Stdout, logging.LogLevel(cfg.Server.LogLevel))
	logging.Info("driversyncd starting", map[string]interface{}{
		"port":     cfg.Server.Port,
		"data_dir": cfg.Server.DataDir,
	})

	s, err := store.Open(cfg.Server.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	registry := syncpkg.NewRegistry()
	portal := NewPortalClient()
	if err := registerExecutors(registry, portal); err != nil {
		return fmt.Errorf("register executors: %w", err)
	}

	engine := syncpkg.NewEngine(s, registry, syncpkg.Options{
		MaxAttempts:     cfg.Sync.MaxAttempts,
		ExecutorTimeout: cfg.ExecutorTimeout(),
	})

	manager := queue.NewManager(s)

	watcher := watch.New(s, engine, watch.Options{
		ProbeInterval:   cfg.ProbeInterval(),
		SuccessHold:     cfg.SuccessBannerDuration(),
		SyncOnReconnect: cfg.Sync.SyncOnReconnect,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher.Start(ctx)
	defer watcher.Stop()

	hub := NewWSHub()

	// Mirror state changes into the WebSocket stream. sync.started rides on
	// the transition into the syncing state, so it fires exactly once per
	// drain no matter how the drain was triggered.
	bannerToken := watcher.Subscribe(func(state watch.BannerState) {
		if state == watch.StateSyncing {
			pending, err := manager.PendingCount()
			if err != nil {
				pending = 0
			}
			hub.BroadcastSyncStarted(pending)
		}
		hub.BroadcastBannerChanged(state)
	})
	defer watcher.Unsubscribe(bannerToken)

	storeToken := s.Subscribe(func(store.Event) {
		count, err := manager.PendingCount()
		if err != nil {
			return
		}
		hub.BroadcastQueueChanged(count, manager.Degraded())
	})
	defer s.Unsubscribe(storeToken)

	lossToken := watcher.SubscribeLoss(func(report store.LossReport) {
		hub.BroadcastStorageLoss(report.LostCount, report.LostIDs)
	})
	defer watcher.UnsubscribeLoss(lossToken)

	handler := handlers.NewQueueHandler(manager, watcher, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/queue", handler.Queue)
	mux.HandleFunc("/queue/count", handler.Count)
	mux.HandleFunc("/conflicts", handler.Conflicts)
	mux.HandleFunc("/conflicts/dismiss", handler.DismissConflict)
	mux.HandleFunc("/conflicts/retry", handler.RetryConflict)
	mux.HandleFunc("/sync", handler.Sync)
	mux.HandleFunc("/connectivity", handler.Connectivity)
	mux.HandleFunc("/status", handler.Status)
	mux.HandleFunc("/storage/loss/ack", handler.AcknowledgeLoss)
	mux.HandleFunc("/health", handler.Health)
	mux.HandleFunc("/ws", HandleWebSocket(hub, cfg.Server.Port))

	server := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logging.Info("driversyncd shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
