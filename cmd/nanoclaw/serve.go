package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nanoclaw/orchestrator/internal/bus"
	"github.com/nanoclaw/orchestrator/internal/channels"
	"github.com/nanoclaw/orchestrator/internal/channels/discord"
	"github.com/nanoclaw/orchestrator/internal/channels/telegram"
	"github.com/nanoclaw/orchestrator/internal/channels/whatsapp"
	"github.com/nanoclaw/orchestrator/internal/config"
	"github.com/nanoclaw/orchestrator/internal/ipc"
	"github.com/nanoclaw/orchestrator/internal/orchestrator"
	"github.com/nanoclaw/orchestrator/internal/queue"
	"github.com/nanoclaw/orchestrator/internal/runner"
	"github.com/nanoclaw/orchestrator/internal/sandbox"
	"github.com/nanoclaw/orchestrator/internal/scheduler"
	"github.com/nanoclaw/orchestrator/internal/store"
	"github.com/nanoclaw/orchestrator/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.NeedsOnboard {
		slog.Warn("no config.yaml found, running with defaults — run `nanoclaw onboard` to configure channels")
	}
	setLogLevel(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, store.DefaultPath(cfg.DataDir))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	tracerProvider, err := tracing.Init(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracing: shutdown failed", "error", err)
		}
	}()

	msgBus := bus.New()
	dedupe := bus.NewDedupeCache(10*time.Minute, 4096)
	msgBus.OnInbound(func(ctx context.Context, msg bus.InboundMessage) {
		ingestMessage(ctx, st, dedupe, msg)
	})

	sbRunner := &sandbox.Runner{Tracer: tracerProvider.Tracer}
	containerTimeout, err := config.ParseDuration("container_timeout", cfg.ContainerTimeout)
	if err != nil {
		return err
	}
	runFunc := runner.New(st, msgBus, sbRunner, runner.Config{
		Image:            cfg.Sandbox.Image,
		ContainerTimeout: containerTimeout,
		AssistantName:    cfg.AssistantName,
	})

	idleTimeout, err := config.ParseDuration("idle_timeout", cfg.IdleTimeout)
	if err != nil {
		return err
	}
	baseRetry := time.Duration(cfg.BaseRetryMS) * time.Millisecond
	qm := queue.NewManager(queue.Config{
		DataDir:       cfg.DataDir,
		MaxConcurrent: cfg.MaxConcurrent,
		MaxRetries:    cfg.MaxRetries,
		BaseRetryWait: baseRetry,
		IdleTimeout:   idleTimeout,
	}, runFunc)
	defer qm.Shutdown(30 * time.Second)

	chanMgr := channels.NewManager(msgBus)
	startChannels(ctx, chanMgr, cfg, st, msgBus)

	mainFolder := cfg.MainFolder
	if mainFolder == "" {
		if mf, err := st.MainFolder(ctx); err == nil {
			mainFolder = mf
		}
	}
	timezone := cfg.Timezone

	dispatcher := &ipc.Dispatcher{Store: st, Bus: msgBus, Channels: chanMgr, MainFolder: mainFolder, Timezone: timezone}
	ipcPollInterval, err := config.ParseDuration("ipc_poll_interval", cfg.IPCPollInterval)
	if err != nil {
		return err
	}
	watcher := ipc.NewWatcher(cfg.DataDir, ipcPollInterval)
	if err := registerFolders(ctx, st, watcher); err != nil {
		return fmt.Errorf("register ipc folders: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start ipc watcher: %w", err)
	}
	go dispatcher.Consume(ctx, cfg.DataDir, watcher.Scans())

	schedulerInterval, err := config.ParseDuration("scheduler_interval", cfg.SchedulerInterval)
	if err != nil {
		return err
	}
	sched := scheduler.New(st, qm, schedulerInterval, timezone)
	sched.Tracer = tracerProvider.Tracer
	go sched.Run(ctx)

	pollInterval, err := config.ParseDuration("poll_interval", cfg.PollInterval)
	if err != nil {
		return err
	}
	loop := orchestrator.New(st, qm, orchestrator.Config{
		PollInterval:       pollInterval,
		MaxContextMessages: cfg.MaxContextMessages,
		AssistantName:      cfg.AssistantName,
	})
	loop.Recover(ctx)
	go loop.Run(ctx)

	slog.Info("nanoclaw orchestrator started", "data_dir", cfg.DataDir)
	<-ctx.Done()
	slog.Info("shutting down")
	chanMgr.StopAll()
	return nil
}

// ingestMessage persists an inbound message (deduped by its channel-native
// id) and touches the owning chat's last-seen timestamp, feeding the
// orchestrator loop's next ingest tick.
func ingestMessage(ctx context.Context, st *store.Store, dedupe *bus.DedupeCache, msg bus.InboundMessage) {
	key := bus.Key(msg.Channel, msg.SenderID, msg.ChatID, msg.MessageID)
	if dedupe.IsDuplicate(key) {
		return
	}
	now := time.Now()
	if _, err := st.InsertMessage(ctx, store.Message{
		ChatID:     msg.ChatID,
		Channel:    msg.Channel,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Text:       msg.Text,
		IsFromBot:  false,
		CreatedAt:  now,
	}); err != nil {
		slog.Error("ingest: insert message failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		return
	}
	if err := st.TouchChat(ctx, msg.ChatID, msg.Channel, now); err != nil {
		slog.Error("ingest: touch chat failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
	}
}

func registerFolders(ctx context.Context, st *store.Store, watcher *ipc.Watcher) error {
	groups, err := st.ListGroups(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		watcher.AddFolder(g.Folder)
	}
	return nil
}

func startChannels(ctx context.Context, mgr *channels.Manager, cfg config.Config, st *store.Store, msgBus *bus.MessageBus) {
	if cfg.Channels.Telegram.Enabled {
		ch, err := telegram.New(cfg.Channels.Telegram, msgBus, st)
		if err != nil {
			slog.Error("telegram: init failed", "error", err)
		} else {
			mgr.Start(ctx, ch)
		}
	}
	if cfg.Channels.Discord.Enabled {
		ch, err := discord.New(cfg.Channels.Discord, msgBus)
		if err != nil {
			slog.Error("discord: init failed", "error", err)
		} else {
			mgr.Start(ctx, ch)
		}
	}
	if cfg.Channels.WhatsApp.Enabled {
		dbPath := cfg.Channels.WhatsApp.DeviceDBPath
		if dbPath == "" {
			dbPath = filepath.Join(cfg.DataDir, "whatsapp.db")
		}
		ch := whatsapp.New(dbPath, cfg.Channels.WhatsApp.AllowFrom, msgBus)
		mgr.Start(ctx, ch)
	}
}

func setLogLevel(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
