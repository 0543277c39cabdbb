package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helvetia-cloud/worker/internal/cleanup"
	"github.com/helvetia-cloud/worker/internal/clock"
	"github.com/helvetia-cloud/worker/internal/config"
	"github.com/helvetia-cloud/worker/internal/deploy"
	"github.com/helvetia-cloud/worker/internal/docker"
	"github.com/helvetia-cloud/worker/internal/events"
	"github.com/helvetia-cloud/worker/internal/health"
	"github.com/helvetia-cloud/worker/internal/locks"
	"github.com/helvetia-cloud/worker/internal/logbus"
	"github.com/helvetia-cloud/worker/internal/logging"
	"github.com/helvetia-cloud/worker/internal/notify"
	"github.com/helvetia-cloud/worker/internal/queue"
	"github.com/helvetia-cloud/worker/internal/store"
)

var version = "dev"

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogJSON, cfg.Production())

	fmt.Println("helvetia-worker " + version)
	fmt.Println("=============================================")
	fmt.Printf("NODE_ENV=%s\n", cfg.Env)
	fmt.Printf("DOCKER_HOST=%s (socket proxy: %t)\n", cfg.DockerHost, cfg.SocketProxyMode())
	fmt.Printf("PLATFORM_DOMAIN=%s\n", cfg.PlatformDomain)
	fmt.Printf("WORKER_CONCURRENCY=%d\n", cfg.Concurrency)
	fmt.Printf("WORKER_HEALTH_PORT=%d\n", cfg.HealthPort)
	fmt.Printf("CLEANUP_CRON=%q\n", cfg.CleanupCron)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	client, err := docker.NewClient(cfg.DockerHost, nil)
	if err != nil {
		log.Error("failed to create Docker client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := client.Ping(pingCtx); err != nil {
		pingCancel()
		log.Error("Docker daemon unreachable", "host", cfg.DockerHost, "error", err)
		os.Exit(1)
	}
	pingCancel()

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ropt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(ropt)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis unreachable", "error", err)
		os.Exit(1)
	}

	clk := clock.Real{}
	bus := events.New()

	// Build notification chain.
	var notifiers []notify.Notifier
	notifiers = append(notifiers, notify.NewLogNotifier(log))
	if cfg.NotifyWebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.NotifyWebhookURL, nil))
		log.Info("webhook notifications enabled", "url", cfg.NotifyWebhookURL)
	}
	if cfg.NotifySlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlack(cfg.NotifySlackWebhook))
		log.Info("slack notifications enabled")
	}
	if cfg.NotifyDiscordWebhook != "" {
		notifiers = append(notifiers, notify.NewDiscord(cfg.NotifyDiscordWebhook))
		log.Info("discord notifications enabled")
	}
	dispatcher := notify.NewDispatcher(bus, notify.NewMulti(log, notifiers...), cfg.NotifyOnSuccess)
	go dispatcher.Run(ctx)

	locker := locks.New(rdb, clk, log.Component("locks"), locks.Options{
		TTL:       cfg.LockTTL,
		Retries:   cfg.LockRetries,
		BaseDelay: cfg.LockRetryDelay,
		Jitter:    cfg.LockJitter,
	})
	logs := logbus.New(rdb, log.Component("logbus"))

	orchestrator := deploy.NewOrchestrator(deploy.Deps{
		Docker:  client,
		Store:   db,
		Locker:  locker,
		LogBus:  logs,
		Events:  bus,
		Factory: deploy.NewFactory(client, cfg, log.Component("strategy")),
		Config:  cfg,
		Clock:   clk,
		Log:     log.Component("deploy"),
	})
	cleaner := cleanup.New(client, db, bus, cfg, clk, log.Component("cleanup"))

	handler := queue.NewHandler(orchestrator, cleaner, cfg.MetricsTextfile, log.Component("queue"))
	server, err := queue.NewServer(cfg, handler, log.Component("queue"))
	if err != nil {
		log.Error("failed to build queue runtime", "error", err)
		os.Exit(1)
	}

	surface := health.NewServer(rdb, server.Inspector(), clk, log.Component("health"))
	surface.Start(net.JoinHostPort("", strconv.Itoa(cfg.HealthPort)))
	defer surface.Shutdown(context.Background())

	log.Info("worker started", "version", version, "concurrency", cfg.Concurrency)

	if err := server.Run(ctx); err != nil {
		log.Error("worker exited with error", "error", err)
		os.Exit(1)
	}

	log.Info("worker shutdown complete")
}
