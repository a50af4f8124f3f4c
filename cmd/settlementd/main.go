package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	jobscli "github.com/odyssey-erp/settlement/cmd/settlementd/cli"
	"github.com/odyssey-erp/settlement/internal/app"
	"github.com/odyssey-erp/settlement/internal/platform/db"
	"github.com/odyssey-erp/settlement/internal/settlement/pgstore"
)

type configKey struct{}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := &cli.App{
		Name:   "settlementd",
		Usage:  "Seller settlement dashboard API",
		Before: loadConfig,
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Create the settlement rollup table in PostgreSQL",
				Action: migrate,
			},
			{
				Name:  "jobs",
				Usage: "Manage background jobs",
				Subcommands: []*cli.Command{
					{
						Name:      "trigger",
						Usage:     "Enqueue a job (warmup or cache-bump)",
						ArgsUsage: "<job>",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "active-days", Usage: "Warm sellers active within this many days", Value: 30},
							&cli.Int64SliceFlag{Name: "seller", Usage: "Warm only these sellers"},
							&cli.StringFlag{Name: "reason", Usage: "Reason recorded with a cache bump"},
						},
						Action: triggerJob,
					},
					{
						Name:   "stats",
						Usage:  "Print default queue statistics",
						Action: queueStats,
					},
				},
			},
		},
	}

	if err := application.RunContext(ctx, os.Args); err != nil {
		slog.Default().Error("settlementd", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.Context = context.WithValue(c.Context, configKey{}, cfg)
	return nil
}

func configFrom(c *cli.Context) (*app.Config, error) {
	cfg, ok := c.Context.Value(configKey{}).(*app.Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not loaded")
	}
	return cfg, nil
}

func migrate(c *cli.Context) error {
	cfg, err := configFrom(c)
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(c.Context, cfg.PGDSN, db.Options{})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pgstore.NewStore(pool).EnsureSchema(c.Context); err != nil {
		return err
	}
	logger.Info("settlement schema ready")
	return nil
}

func triggerJob(c *cli.Context) error {
	cfg, err := configFrom(c)
	if err != nil {
		return err
	}
	name := c.Args().First()
	if name == "" {
		return errors.New("job name required")
	}
	jobsCLI, err := jobscli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = jobsCLI.Close() }()

	info, err := jobsCLI.Trigger(c.Context, name, jobscli.TriggerOptions{
		ActiveDays: c.Int("active-days"),
		SellerIDs:  c.Int64Slice("seller"),
		Reason:     c.String("reason"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
	return nil
}

func queueStats(c *cli.Context) error {
	cfg, err := configFrom(c)
	if err != nil {
		return err
	}
	jobsCLI, err := jobscli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = jobsCLI.Close() }()

	stats, err := jobsCLI.InspectQueue(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	return nil
}
