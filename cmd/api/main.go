package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/passbi/busgraph/internal/api"
	"github.com/passbi/busgraph/internal/cache"
	"github.com/passbi/busgraph/internal/config"
	"github.com/passbi/busgraph/internal/db"
	"github.com/passbi/busgraph/internal/graph"
	"github.com/passbi/busgraph/internal/logging"
	"github.com/passbi/busgraph/internal/middleware"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Format, cfg.Log.Debug)

	log.Info().Msg("Starting busgraph API server...")
	ctx := context.Background()

	pool, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()
	log.Info().Msg("Database connection established")

	rdb, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connection established")

	// The stop graph is served from memory; the database only holds the snapshot
	reg, err := graph.NewStore(pool).Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load stop graph")
	}

	favorites := cache.NewFavorites(rdb)
	srv := api.NewServer(reg, favorites, cfg.Server.NearbyRadius)
	srv.AddHealthCheck("database", func(ctx context.Context) error { return db.HealthCheck(ctx, pool) })
	srv.AddHealthCheck("redis", favorites.HealthCheck)
	if err := srv.RestoreFavorites(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to restore favorites")
	}

	app := fiber.New(fiber.Config{
		AppName:      "busgraph API",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorHandler: api.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(middleware.DefaultRequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(middleware.RateLimit(rdb, cfg.RateLimit))

	srv.Register(app)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "endpoint not found",
		})
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("Server listening")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
