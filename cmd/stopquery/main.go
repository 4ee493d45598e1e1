package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/passbi/busgraph/internal/config"
	"github.com/passbi/busgraph/internal/db"
	"github.com/passbi/busgraph/internal/feed"
	"github.com/passbi/busgraph/internal/graph"
	"github.com/passbi/busgraph/internal/logging"
	"github.com/passbi/busgraph/internal/models"
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
		Name:        "stopquery",
		Description: "Answers connectivity and schedule questions against the stop graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "stops",
				Usage: "Read the graph from a stops document instead of the database",
			},
			&cli.StringFlag{
				Name:  "routes",
				Usage: "Routes document, used with --stops",
			},
			&cli.StringFlag{
				Name:  "times",
				Usage: "Schedule CSV, used with --stops",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "connections",
				Usage:     "List the routes connecting two stops and the ring distance",
				ArgsUsage: "<from> <to>",
				Action: func(c *cli.Context) error {
					reg, from, to, err := resolvePair(c, cfg)
					if err != nil {
						return err
					}

					routes := reg.RoutesTo(from, to)
					if len(routes) == 0 {
						fmt.Printf("%s and %s are not connected\n", reg.Stop(from), reg.Stop(to))
						return nil
					}
					for _, r := range routes {
						fmt.Printf("%s\t%s\n", r.ID, r.LongName)
					}
					if d := reg.DistanceTo(from, to); d != graph.Unreachable {
						fmt.Printf("distance: %d stops\n", d)
					}
					return nil
				},
			},
			{
				Name:      "times",
				Usage:     "List departures from a stop on routes that reach another",
				ArgsUsage: "<from> <to>",
				Action: func(c *cli.Context) error {
					reg, from, to, err := resolvePair(c, cfg)
					if err != nil {
						return err
					}

					for _, t := range reg.TimesTo(from, to) {
						fmt.Printf("%s\t%s\n", feed.FormatSeconds(t.Departure), t.RouteName)
					}
					return nil
				},
			},
			{
				Name:      "routes",
				Usage:     "List every route serving a stop's location",
				ArgsUsage: "<stop>",
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 1 {
						return errors.New("<stop> must be provided")
					}
					reg, err := loadRegistry(c, cfg)
					if err != nil {
						return err
					}
					h, err := lookup(reg, c.Args().Get(0))
					if err != nil {
						return err
					}

					var family []string
					for _, m := range reg.Family(h) {
						family = append(family, reg.Stop(m).ID)
					}
					fmt.Printf("%s (%s)\n", reg.Stop(h), strings.Join(family, ", "))
					for _, r := range reg.Routes(h) {
						fmt.Printf("%s\t%s\n", r.ID, r.LongName)
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

// loadRegistry builds the graph from feed files when --stops is given,
// otherwise from the stored snapshot
func loadRegistry(c *cli.Context, cfg config.AppConfig) (*graph.Registry, error) {
	if stops := c.String("stops"); stops != "" {
		f, err := feed.ParseFeed(stops, c.String("routes"), c.String("times"))
		if err != nil {
			return nil, err
		}
		reg := graph.NewRegistry()
		if _, err := reg.Ingest(f); err != nil {
			return nil, err
		}
		return reg, nil
	}

	pool, err := db.Open(c.Context, cfg.Database)
	if err != nil {
		return nil, err
	}
	defer pool.Close()
	return graph.NewStore(pool).Load(c.Context)
}

func resolvePair(c *cli.Context, cfg config.AppConfig) (*graph.Registry, models.StopHandle, models.StopHandle, error) {
	if c.Args().Len() != 2 {
		return nil, models.NoStop, models.NoStop, errors.New("<from> and <to> must be provided")
	}
	reg, err := loadRegistry(c, cfg)
	if err != nil {
		return nil, models.NoStop, models.NoStop, err
	}
	from, err := lookup(reg, c.Args().Get(0))
	if err != nil {
		return nil, models.NoStop, models.NoStop, err
	}
	to, err := lookup(reg, c.Args().Get(1))
	if err != nil {
		return nil, models.NoStop, models.NoStop, err
	}
	return reg, from, to, nil
}

func lookup(reg *graph.Registry, id string) (models.StopHandle, error) {
	h, ok := reg.Lookup(id)
	if !ok {
		return models.NoStop, fmt.Errorf("%w: %s", graph.ErrStopNotFound, id)
	}
	return h, nil
}
