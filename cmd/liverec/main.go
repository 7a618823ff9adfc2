package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stmtc233/BilibiliLiveRecorder/internal/bilibili"
	"github.com/stmtc233/BilibiliLiveRecorder/internal/config"
	"github.com/stmtc233/BilibiliLiveRecorder/internal/control"
	"github.com/stmtc233/BilibiliLiveRecorder/internal/history"
	"github.com/stmtc233/BilibiliLiveRecorder/internal/recorder"
	"github.com/stmtc233/BilibiliLiveRecorder/internal/server"
)

const (
	monitorDrainTimeout  = 5 * time.Second
	statusServerShutdown = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if err := os.MkdirAll(cfg.Recorder.OutputDir, 0o755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	encoder := recorder.NewEncoder(cfg.Recorder.FFmpegPath)
	encoderVersion := "unknown"
	if version, err := encoder.Version(); err != nil {
		log.Printf("warning: %v", err)
	} else {
		encoderVersion = version
		log.Printf("encoder: %s (%s)", version, encoder.Path())
	}

	// The signal only cancels this context; all cleanup happens below in
	// normal control flow once the loop returns.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store history.Store = history.NopStore{}
	if cfg.History.URI != "" {
		mongoStore, err := history.NewMongoStore(ctx, cfg.History.URI, cfg.History.Name)
		if err != nil {
			log.Fatalf("failed to open history store: %v", err)
		}
		store = mongoStore
		log.Printf("recording history enabled (database %s)", cfg.History.Name)
	}

	table := recorder.NewSessionTable()
	manager := recorder.NewManager(table, encoder, store, cfg.Recorder.OutputDir, cfg.Recorder.StopGrace)
	monitor := recorder.NewMonitor(table, store, cfg.Recorder.MonitorInterval)
	client := bilibili.NewClient(cfg.Resolver.Cookies, cfg.Resolver.Quality, cfg.Resolver.StreamIndex)

	outputDir, err := filepath.Abs(cfg.Recorder.OutputDir)
	if err != nil {
		outputDir = cfg.Recorder.OutputDir
	}
	log.Printf("monitoring %d room(s), saving to %s (check interval %s, quality %s)",
		len(cfg.Rooms.IDs), outputDir, cfg.Recorder.CheckInterval, bilibili.QualityName(cfg.Resolver.Quality))
	printRoomInfo(ctx, client, cfg.Rooms.IDs)

	var statusServer *server.StatusServer
	if cfg.Status.Addr != "" {
		statusServer = server.New(manager, cfg.Rooms.IDs, encoderVersion)
		go func() {
			log.Printf("status API listening on %s", cfg.Status.Addr)
			if err := statusServer.Listen(cfg.Status.Addr); err != nil {
				log.Printf("status server error: %v", err)
			}
		}()
	}

	monitorDone := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(monitorDone)
	}()

	loop := control.NewLoop(client, manager, cfg.Rooms.IDs, cfg.Recorder.CheckInterval, cfg.Recorder.RetryDelay)
	loop.Run(ctx)

	log.Printf("shutdown signal received, stopping all recordings")
	manager.StopAll()

	select {
	case <-monitorDone:
	case <-time.After(monitorDrainTimeout):
		log.Printf("monitor did not finish its last sweep in time")
	}

	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), statusServerShutdown)
		if err := statusServer.ShutdownWithContext(shutdownCtx); err != nil {
			log.Printf("status server shutdown: %v", err)
		}
		cancel()
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Close(closeCtx); err != nil {
		log.Printf("history store close: %v", err)
	}
	cancel()

	log.Printf("shutdown complete")
}

// printRoomInfo logs title, anchor and live status for each configured room.
// Failures are informational only.
func printRoomInfo(ctx context.Context, client *bilibili.Client, rooms []string) {
	for _, roomID := range rooms {
		info, err := client.RoomInfo(ctx, roomID)
		if err != nil {
			log.Printf("room %s: info unavailable: %v", roomID, err)
			continue
		}
		status := "offline"
		if info.IsLive() {
			status = "live"
		}
		log.Printf("room %s: %s - %s [%s]", roomID, info.Anchor, info.Title, status)
	}
}
