package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/passbi/busgraph/internal/config"
	"github.com/passbi/busgraph/internal/db"
	"github.com/passbi/busgraph/internal/feed"
	"github.com/passbi/busgraph/internal/graph"
	"github.com/passbi/busgraph/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Format, cfg.Log.Debug)

	app := &cli.App{
		Name:        "importer",
		Description: "Loads stop, route and schedule feeds into the stop graph snapshot",
		Commands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Parse a feed and replace the stored snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "stops",
						Usage:    "Path to the stops JSON document",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "routes",
						Usage: "Path to the routes JSON document",
					},
					&cli.StringFlag{
						Name:  "times",
						Usage: "Path to the schedule CSV",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Parse and ingest without writing to the database",
					},
				},
				Action: func(c *cli.Context) error {
					return runImport(c.Context, cfg, c.String("stops"), c.String("routes"), c.String("times"), c.Bool("dry-run"))
				},
			},
			{
				Name:  "migrate",
				Usage: "Create the snapshot tables",
				Action: func(c *cli.Context) error {
					pool, err := db.Open(c.Context, cfg.Database)
					if err != nil {
						return err
					}
					defer pool.Close()
					return graph.NewStore(pool).Migrate(c.Context)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func runImport(ctx context.Context, cfg config.AppConfig, stopsPath, routesPath, timesPath string, dryRun bool) error {
	startTime := time.Now()

	log.Info().Str("stops", stopsPath).Str("routes", routesPath).Str("times", timesPath).Msg("Step 1/3: Parsing feed...")
	f, err := feed.ParseFeed(stopsPath, routesPath, timesPath)
	if err != nil {
		return err
	}

	log.Info().Msg("Step 2/3: Building stop graph...")
	reg := graph.NewRegistry()
	stats, err := reg.Ingest(f)
	if err != nil {
		return fmt.Errorf("failed to ingest feed: %w", err)
	}

	if dryRun {
		log.Info().
			Int("stops", stats.Stops).
			Int("routes", stats.Routes).
			Int("times", stats.Times).
			Msg("Dry run, nothing written")
		return nil
	}

	log.Info().Msg("Step 3/3: Saving snapshot...")
	pool, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := graph.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	runID, err := store.Save(ctx, reg)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	log.Info().Str("run", runID.String()).Dur("duration", time.Since(startTime)).Msg("Import completed successfully")
	return nil
}
