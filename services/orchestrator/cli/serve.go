package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
	"github.com/artisanal-iq/wordpress-content-generator/internal/executor"
	"github.com/artisanal-iq/wordpress-content-generator/internal/kafka"
	"github.com/artisanal-iq/wordpress-content-generator/internal/pipeline"
	"github.com/artisanal-iq/wordpress-content-generator/internal/postgres"
	redisstore "github.com/artisanal-iq/wordpress-content-generator/internal/redis"
	"github.com/artisanal-iq/wordpress-content-generator/internal/workunit"
	"github.com/artisanal-iq/wordpress-content-generator/pkg/telemetry"
	"github.com/artisanal-iq/wordpress-content-generator/services/orchestrator"
	"github.com/artisanal-iq/wordpress-content-generator/services/orchestrator/api"
	"github.com/artisanal-iq/wordpress-content-generator/services/orchestrator/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "control API port")
	serveCmd.Flags().String("metrics-addr", ":9091", "Prometheus metrics server address")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	serveCmd.Flags().Duration("poll-interval", 30*time.Second, "task store polling interval")
	serveCmd.Flags().Duration("calendar-interval", time.Minute, "publish schedule check interval")
	serveCmd.Flags().Int("max-concurrent", 3, "maximum stages running in parallel")
	serveCmd.Flags().Int("batch-size", 20, "maximum due records claimed per cycle")
	serveCmd.Flags().Duration("stage-timeout", 2*time.Minute, "per-stage execution timeout")
	serveCmd.Flags().Int("max-retries", 3, "attempts per stage before escalation")
	serveCmd.Flags().Duration("base-delay", 30*time.Second, "backoff before the first retry; doubles per attempt")
	serveCmd.Flags().Duration("max-delay", 10*time.Minute, "cap on the computed backoff")
	serveCmd.Flags().String("agent-base-url", "http://localhost:8000", "base URL of the content agent service")
	serveCmd.Flags().String("wp-base-url", "", "WordPress site base URL")
	serveCmd.Flags().String("wp-username", "", "WordPress username")
	serveCmd.Flags().String("wp-password", "", "WordPress application password")
	serveCmd.Flags().Int("wp-rate-limit", 10, "max WordPress API calls per interval")
	serveCmd.Flags().Duration("wp-rate-interval", time.Minute, "WordPress rate limit window")

	for viperKey, flagName := range map[string]string{
		"http_port":         "http-port",
		"metrics_addr":      "metrics-addr",
		"otel_endpoint":     "otel-endpoint",
		"redis_addr":        "redis-addr",
		"kafka_brokers":     "kafka-brokers",
		"poll_interval":     "poll-interval",
		"calendar_interval": "calendar-interval",
		"max_concurrent":    "max-concurrent",
		"batch_size":        "batch-size",
		"stage_timeout":     "stage-timeout",
		"max_retries":       "max-retries",
		"base_delay":        "base-delay",
		"max_delay":         "max-delay",
		"agent_base_url":    "agent-base-url",
		"wp_base_url":       "wp-base-url",
		"wp_username":       "wp-username",
		"wp_password":       "wp-password",
		"wp_rate_limit":     "wp-rate-limit",
		"wp_rate_interval":  "wp-rate-interval",
	} {
		bindFlag(viperKey, serveCmd.Flags(), flagName)
	}
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = viper.BindEnv("wp_password", "WP_APP_PASSWORD")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "orchestrator")
	instanceID := "orchestrator-" + uuid.New().String()[:8]

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "orchestrator", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	redisClient := redisstore.NewClient(cfg.RedisAddr)
	defer redisClient.Close()

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	producer := kafka.NewProducer(brokers)
	defer producer.Close()

	tasks := postgres.NewTaskRepository(pool)
	content := postgres.NewContentRepository(pool)
	plans := postgres.NewPlanRepository(pool)
	schedules := postgres.NewScheduleRepository(pool)

	registry, err := buildRegistry(cfg, redisClient)
	if err != nil {
		return fmt.Errorf("stage registry: %w", err)
	}

	elector := redisstore.NewElector(redisClient, "orchestrator:leader", instanceID, 30*time.Second)

	sched := orchestrator.NewScheduler(tasks, content, plans, registry,
		executor.New(registry, cfg.StageTimeout),
		orchestrator.WithLogger(logger),
		orchestrator.WithInterval(cfg.PollInterval),
		orchestrator.WithMaxConcurrent(cfg.MaxConcurrent),
		orchestrator.WithBatchSize(cfg.BatchSize),
		orchestrator.WithPolicy(pipeline.Policy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
		}),
		orchestrator.WithMirror(redisstore.NewStateStore(redisClient)),
		orchestrator.WithEvents(kafka.NewEventPublisher(producer)),
		orchestrator.WithElector(elector),
	)

	calendar := orchestrator.NewCalendar(schedules, sched, elector, cfg.CalendarInterval, logger)

	reviews := orchestrator.NewReviewConsumer(
		kafka.NewConsumer(brokers, kafka.TopicReviews, "orchestrator", logger),
		sched, logger,
	)

	handler := api.NewHandler(sched, content, tasks, plans, schedules,
		redisstore.NewStateStore(redisClient), logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(handler, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down...")
		runCancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		calendar.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		if err := reviews.Run(runCtx); err != nil {
			logger.Error("review consumer stopped", slog.String("error", err.Error()))
			runCancel()
		}
	}()
	go func() {
		defer wg.Done()
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", slog.String("error", err.Error()))
			runCancel()
		}
	}()

	logger.Info("orchestrator starting",
		slog.String("instance_id", instanceID),
		slog.String("http_port", cfg.HTTPPort),
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Int("max_concurrent", cfg.MaxConcurrent),
	)
	sched.Run(runCtx)
	elector.Resign(context.Background())
	wg.Wait()
	logger.Info("stopped")
	return nil
}

// buildRegistry wires the production stage chain: every stage except publish
// runs against the agent service; publish talks to WordPress behind the
// Redis rate limiter.
func buildRegistry(cfg config.Config, redisClient *goredis.Client) (*pipeline.Registry, error) {
	httpClient := &http.Client{Timeout: cfg.StageTimeout}

	units := make(map[string]workunit.WorkUnit, len(pipeline.DefaultChain))
	for _, stage := range pipeline.DefaultChain {
		if stage == domain.ContentPublish {
			continue
		}
		units[string(stage)] = workunit.NewAgentClient(string(stage), cfg.AgentBaseURL, httpClient)
	}

	limiter := redisstore.NewRateLimiter(redisClient, cfg.WPRateLimit, cfg.WPRateInterval)
	units[string(domain.ContentPublish)] = workunit.NewWordPressPublisher(workunit.WordPressConfig{
		BaseURL:  cfg.WPBaseURL,
		Username: cfg.WPUsername,
		Password: cfg.WPPassword,
	}, limiter, httpClient)

	return pipeline.NewRegistry(pipeline.DefaultChain, units)
}
