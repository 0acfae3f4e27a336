package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/config"
	"github.com/vitovidale/autosplit-service/domain"
	"github.com/vitovidale/autosplit-service/infrastructure"
	"github.com/vitovidale/autosplit-service/usecase"
)

const (
	httpClientTimeout = 2 * time.Minute
	shutdownTimeout   = 15 * time.Second
)

var metricsAddr string

var rootCmd = &cobra.Command{
	Use:   "autosplit",
	Short: "Split-screen reel generator driven by Instagram DMs",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook and jobs HTTP server",
	RunE:  runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued tasks and refresh the access token",
	RunE:  runWorker,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

func init() {
	workerCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9101", "address for the worker's /metrics endpoint")
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the connections shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
	amqp   *amqp.Connection
}

func bootstrap(ctx context.Context, withBroker bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := infrastructure.NewLogger(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		return nil, err
	}
	for _, name := range cfg.InsecureDefaults() {
		logger.Warn("Secret not set, using development default. THIS IS INSECURE FOR PRODUCTION!", zap.String("variable", name))
	}

	a := &app{cfg: cfg, logger: logger}
	if a.db, err = infrastructure.ConnectPostgres(ctx, cfg.DSN(), logger); err != nil {
		return nil, err
	}
	if !withBroker {
		return a, nil
	}
	if a.redis, err = infrastructure.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger); err != nil {
		a.close()
		return nil, err
	}
	if a.amqp, err = infrastructure.ConnectRabbitMQ(ctx, cfg.RabbitMQURL, logger); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.amqp != nil {
		a.amqp.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	a.logger.Sync()
}

// queue opens a publishing channel and the task queue on top of it.
func (a *app) queue() (*infrastructure.RabbitMQTaskQueue, *infrastructure.RedisRevocationStore, error) {
	ch, err := a.amqp.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	revocations := infrastructure.NewRedisRevocationStore(a.redis, a.cfg.RevokedTTL)
	q, err := infrastructure.NewRabbitMQTaskQueue(ch, revocations, a.logger)
	if err != nil {
		ch.Close()
		return nil, nil, err
	}
	return q, revocations, nil
}

func (a *app) graphClient(timeout time.Duration) *infrastructure.GraphAPIClient {
	tokens := infrastructure.NewRedisTokenStore(a.redis, a.cfg.AccessToken)
	return infrastructure.NewGraphAPIClient(a.cfg.GraphAPIURL, a.cfg.GraphDomainURL, tokens, timeout, a.logger)
}

func (a *app) pendingStore() *infrastructure.RedisPendingStore {
	return infrastructure.NewRedisPendingStore(a.redis, a.cfg.DebounceWindow+a.cfg.PendingTTLGrace, a.logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()
	cfg, logger := a.cfg, a.logger

	queue, _, err := a.queue()
	if err != nil {
		return err
	}
	files, err := infrastructure.NewLocalFileStore(cfg.ReelsDir, cfg.GameplaysDir, cfg.OutputsDir)
	if err != nil {
		return err
	}
	accounts := infrastructure.NewPostgresAccountRepository(a.db)
	configs := infrastructure.NewPostgresConfigurationRepository(a.db, logger)
	jobs := infrastructure.NewPostgresVideoRepository(a.db, logger)

	scheduler := usecase.NewDebounceScheduler(queue, a.pendingStore(), cfg.DebounceWindow, uuid.NewString, logger)
	replies := usecase.NewReplyDispatcher(queue, cfg.ReplySpacing, uuid.NewString, logger)
	webhook := usecase.NewHandleWebhookUseCase(accounts, configs, a.graphClient(cfg.IngressHTTPTimeout), scheduler, replies, cfg.DashboardURL, logger)

	gin.SetMode(gin.ReleaseMode)
	router := infrastructure.NewRouter(infrastructure.RouterConfig{
		Webhooks:  infrastructure.NewWebhookHandlers(webhook, cfg.VerifyToken, logger),
		Jobs:      infrastructure.NewJobHandlers(&usecase.ListJobsUseCase{Jobs: jobs}, files, logger),
		AppSecret: cfg.AppSecret,
		JWTSecret: []byte(cfg.JWTSecret),
		Health: map[string]func(ctx context.Context) error{
			"database": a.db.PingContext,
			"redis":    func(ctx context.Context) error { return a.redis.Ping(ctx).Err() },
			"rabbitmq": infrastructure.RabbitMQHealth(a.amqp),
		},
		Logger: logger,
	})
	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Autosplit Service listening", zap.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()
	cfg, logger := a.cfg, a.logger

	queue, revocations, err := a.queue()
	if err != nil {
		return err
	}
	files, err := infrastructure.NewLocalFileStore(cfg.ReelsDir, cfg.GameplaysDir, cfg.OutputsDir)
	if err != nil {
		return err
	}
	accounts := infrastructure.NewPostgresAccountRepository(a.db)
	configs := infrastructure.NewPostgresConfigurationRepository(a.db, logger)
	jobs := infrastructure.NewPostgresVideoRepository(a.db, logger)
	graph := a.graphClient(httpClientTimeout)

	ytdlp := infrastructure.NewYtDlpResolver(cfg.YtDlpPath)
	acquisition := usecase.NewMediaAcquisition(
		infrastructure.NewHTTPDownloader(httpClientTimeout, logger),
		map[usecase.Platform]domain.LinkResolver{
			usecase.PlatformTikTok:    infrastructure.NewTikwmResolver(cfg.TikwmURL, httpClientTimeout),
			usecase.PlatformYouTube:   ytdlp,
			usecase.PlatformInstagram: ytdlp,
		},
		logger,
	)
	media := infrastructure.NewFFmpegMedia(cfg.FFmpegPath, cfg.FFprobePath, infrastructure.EncodingOptions{
		FPS:     cfg.FPS,
		Bitrate: cfg.Bitrate,
		Preset:  cfg.Preset,
	}, logger)
	processor := usecase.NewProcessVideoUseCase(
		jobs,
		configs,
		infrastructure.NewRedisClaimStore(a.redis, cfg.ClaimTTL),
		acquisition,
		usecase.NewComposeVideoUseCase(media, logger),
		files,
		uuid.NewString,
		logger,
	)

	var publisher usecase.Publisher
	if cfg.PublishEnabled {
		publisher = usecase.NewReelPublisher(graph, cfg.PublicBaseURL, cfg.PublishMaxPolls, cfg.PublishInitialBackoff, logger)
	}
	replies := usecase.NewReplyDispatcher(queue, cfg.ReplySpacing, uuid.NewString, logger)
	runner := usecase.NewTaskRunner(accounts, configs, a.pendingStore(), processor, graph, replies, publisher, logger)
	runner.OnJobFinished = infrastructure.RecordJobFinished

	refresher := infrastructure.NewTokenRefresher(graph, infrastructure.NewRedisTokenStore(a.redis, cfg.AccessToken), logger)
	if err := refresher.Start(cfg.TokenRefreshSpec); err != nil {
		return err
	}
	defer refresher.Stop()

	metricsSrv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	defer metricsSrv.Close()

	consumeCh, err := a.amqp.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel for consumer: %w", err)
	}
	defer consumeCh.Close()

	worker := infrastructure.NewTaskWorker(runner, revocations, cfg.WorkerConcurrency, logger)
	return worker.Consume(ctx, consumeCh)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()
	return infrastructure.ApplyMigrations(a.db, a.logger)
}
