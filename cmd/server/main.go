package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	config "github.com/maheshrc27/linkedin-scheduler/configs"
	"github.com/maheshrc27/linkedin-scheduler/internal/api"
	"github.com/maheshrc27/linkedin-scheduler/internal/database"
	job "github.com/maheshrc27/linkedin-scheduler/internal/jobs"
	"github.com/maheshrc27/linkedin-scheduler/internal/queue"
	"github.com/maheshrc27/linkedin-scheduler/internal/repository"
	"github.com/maheshrc27/linkedin-scheduler/internal/scheduler"
	"github.com/maheshrc27/linkedin-scheduler/internal/service"
	"github.com/maheshrc27/linkedin-scheduler/pkg/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file loaded")
	}

	cfg := config.LoadConfig()
	setupLogger(cfg)

	ctx := context.Background()

	db, err := database.Open(ctx, cfg.PostgresURI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	sealer, err := utils.NewSealer(cfg.SecretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid SECRET_KEY")
	}

	media, err := newMediaStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up media storage")
	}

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	attemptRepo := repository.NewDeliveryAttemptRepository(db)

	// with Redis, matured timers go through asynq; otherwise they run on the
	// in-process pool, which only suits a single instance
	var (
		dispatcher  scheduler.Dispatcher
		asynqClient *asynq.Client
		redisOpt    asynq.RedisConnOpt
	)
	if cfg.RedisURI != "" {
		redisOpt, err = redisConnOpt(cfg.RedisURI)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URI")
		}
		asynqClient = asynq.NewClient(redisOpt)
		dispatcher = queue.NewQueue(asynqClient, cfg.Scheduler.Queue)
	}

	sched := scheduler.New(scheduler.Config{
		Workers:       cfg.Scheduler.Workers,
		DispatchRetry: cfg.Scheduler.DispatchRetry,
	}, repository.NewScheduledJobRepository(db), dispatcher)

	linkedin := service.NewLinkedInService(*cfg)
	authService := service.NewAuthService(linkedin, userRepo, sealer)
	userService := service.NewUserService(userRepo, postRepo, media, sched)
	postService := service.NewPostService(postRepo, userRepo, attemptRepo, media, sched, linkedin, sealer, cfg.MaxUploadBytes)
	deliveryService := service.NewDeliveryService(postRepo, userRepo, attemptRepo, media, linkedin, sched, sealer, service.RetryPolicy{
		Cap:     cfg.Scheduler.RetryCap,
		Backoff: cfg.Scheduler.RetryBackoff,
		Resume:  cfg.Scheduler.DispatchRetry,
	})
	sched.Handle(deliveryService.Deliver)

	var asynqServer *asynq.Server
	if asynqClient != nil {
		asynqServer = asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: cfg.Scheduler.Workers,
			Queues:      map[string]int{cfg.Scheduler.Queue: 1},
		})
		if err := asynqServer.Start(queue.NewServeMux(queue.NewWorker(sched.Fire))); err != nil {
			log.Fatal().Err(err).Msg("could not start asynq server")
		}
	}

	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("could not recover timers")
	}
	reconcile := job.NewReconcileJob(postService)
	reconcile.Run()

	refreshTokenJob := job.NewTokenRefreshJob(userRepo, authService)
	c := cron.New()
	if err := c.AddFunc(cfg.TokenRefreshSpec, refreshTokenJob.RefreshTokens); err != nil {
		log.Fatal().Err(err).Msg("invalid TOKEN_REFRESH_SPEC")
	}
	if err := c.AddFunc(cfg.ReconcileSpec, reconcile.Run); err != nil {
		log.Fatal().Err(err).Msg("invalid RECONCILE_SPEC")
	}
	c.Start()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
		BodyLimit:    int(cfg.MaxUploadBytes) + 1<<20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	api.RegisterRoutes(app, *cfg, api.Services{
		Auth:  authService,
		Users: userService,
		Posts: postService,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Str("addr", cfg.HTTPAddr).Bool("redis", asynqClient != nil).Msg("server is running")

	gracefulShutdown(app, asynqServer, asynqClient, sched, c, db)
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.Production() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func newMediaStore(ctx context.Context, cfg *config.Config) (service.MediaStore, error) {
	if cfg.R2.Enabled() {
		log.Info().Str("bucket", cfg.R2.BucketName).Msg("storing images in r2")
		return service.NewR2MediaStore(ctx, cfg.R2)
	}
	log.Info().Str("dir", cfg.UploadDir).Msg("storing images on local disk")
	return service.NewLocalMediaStore(cfg.UploadDir)
}

func redisConnOpt(uri string) (asynq.RedisConnOpt, error) {
	if strings.Contains(uri, "://") {
		return asynq.ParseRedisURI(uri)
	}
	return asynq.RedisClientOpt{Addr: uri}, nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
		return
	}
	log.Info().Msg("database connection closed")
}

func gracefulShutdown(app *fiber.App, srv *asynq.Server, client *asynq.Client, sched *scheduler.Scheduler, c *cron.Cron, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("shutting down server")

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Error().Err(err).Msg("failed to shut down http server")
	}
	c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	// persisted timers stay in the store and are re-armed on the next start
	if err := sched.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("scheduler did not drain")
	}
	if srv != nil {
		srv.Shutdown()
	}
	if client != nil {
		client.Close()
	}

	closeDB(db)
	log.Info().Msg("server shutdown complete")
}
