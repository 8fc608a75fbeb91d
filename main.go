package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"flighttrack/monitor"
	"flighttrack/services"
	"flighttrack/storage"
)

func main() {
	os.Exit(run(os.Args))
}

// run executes the CLI and returns the process exit code. The log file is
// closed before run returns, so callers may exit right away.
func run(args []string) int {
	closer := setupLogging()
	defer closer.Close()

	app := &cli.App{
		Name:        "flighttrack",
		Usage:       "flight lookup, live tracking and route duration statistics",
		Description: "Runs the Telegram tracker or one-off maintenance commands against the record store",

		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the Telegram bot with scheduled collection",
				Action: runBot,
			},
			{
				Name:   "collect",
				Usage:  "collect records for every monitored route once",
				Action: runCollect,
			},
			{
				Name:      "lookup",
				Usage:     "look up one flight and store its record",
				ArgsUsage: "FLIGHT",
				Action:    runLookup,
			},
			{
				Name:   "stats",
				Usage:  "print the average adjusted duration per route",
				Action: runStats,
			},
			{
				Name:      "watch",
				Usage:     "print a route's records whenever they change",
				ArgsUsage: "DEP ARR",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "poll",
						Value: 10 * time.Second,
						Usage: "how often to pick up writes made by other processes (0 disables)",
					},
				},
				Action: runWatch,
			},
			{
				Name:  "export",
				Usage: "write an Excel report of all records",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Value:   "flighttrack.xlsx",
						Usage:   "output file",
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: 5000,
						Usage: "maximum records exported, newest first",
					},
				},
				Action: runExport,
			},
			{
				Name:   "clear",
				Usage:  "delete every flight record",
				Action: runClear,
			},
		},

		// Exit codes are decided by run, after the log is flushed.
		ExitErrHandler: func(*cli.Context, error) {},
	}

	err := app.Run(args)
	if err == nil {
		return 0
	}
	log.Error().Err(err).Send()

	var ec cli.ExitCoder
	if errors.As(err, &ec) && ec.ExitCode() != 0 {
		return ec.ExitCode()
	}
	return 1
}

// ═══════════════════════════════════════════════════════════════════════════
// Commands
// ═══════════════════════════════════════════════════════════════════════════

func runBot(c *cli.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireBot(); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	app, err := NewApp(cfg, store, newProvider(cfg))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("db", cfg.DBPath).
		Int("routes", len(cfg.Routes)).
		Dur("collect_interval", cfg.CollectInterval).
		Dur("refresh_interval", cfg.RefreshInterval).
		Msg("flighttrack starting")

	return app.Run(ctx)
}

func runCollect(c *cli.Context) error {
	cfg, store, err := loadWithProvider()
	if err != nil {
		return err
	}
	defer store.Close()

	collector := newCollector(cfg, newProvider(cfg), store)
	outcome := collector.Run(c.Context)

	sum, _ := collector.LastRun()
	for _, r := range sum.Reports {
		source := fmt.Sprintf("%d fetched", r.Fetched)
		switch {
		case r.Skipped:
			fmt.Printf("%-8s skipped (invalid route)\n", r.Route)
			continue
		case r.Synthetic && r.ProviderErr != nil:
			source = "provider error, synthetic"
		case r.Synthetic:
			source = "no results, synthetic"
		}
		fmt.Printf("%-8s %s, %d written, %d failed\n", r.Route, source, r.Written, r.Failed)
	}
	fmt.Printf("outcome: %s\n", outcome)

	if outcome != monitor.OutcomeCompleted {
		return fmt.Errorf("collection ended with %s", outcome)
	}
	return nil
}

func runLookup(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: flighttrack lookup FLIGHT", 2)
	}
	cfg, store, err := loadWithProvider()
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := monitor.NewRefresher(c.Args().First(), newProvider(cfg), store, nil, monitor.RefreshConfig{
		Timeout: cfg.ProviderTimeout,
		Lookup:  services.LookupCoordinate,
	})
	if err != nil {
		return err
	}

	v, err := r.RefreshOnce(c.Context)
	if errors.Is(err, monitor.ErrFlightNotFound) {
		return cli.Exit(fmt.Sprintf("flight %s not found", r.FlightNumber()), 1)
	}
	if err != nil {
		return err
	}
	fmt.Println(v.Text())
	return nil
}

func runStats(c *cli.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.AverageAdjustedDurationByRoute(c.Context)
	if err != nil {
		return err
	}
	fmt.Println(monitor.FormatRouteStatistics(stats))
	return nil
}

func runWatch(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: flighttrack watch DEP ARR", 2)
	}
	dep, arr := c.Args().Get(0), c.Args().Get(1)
	if err := monitor.ValidateRoute(dep, arr); err != nil {
		return err
	}

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if poll := c.Duration("poll"); poll > 0 {
		go func() {
			ticker := time.NewTicker(poll)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					store.Invalidate()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	var last string
	for records := range store.WatchRoute(ctx, dep, arr) {
		text := monitor.FormatRouteRecords(dep, arr, records, 20)
		if text == last {
			continue
		}
		last = text
		fmt.Printf("── %s ──\n%s\n", time.Now().Format("15:04:05"), text)
	}
	return nil
}

func runExport(c *cli.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.AllRecords(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	stats, err := store.AverageAdjustedDurationByRoute(c.Context)
	if err != nil {
		return err
	}

	f, err := services.GenerateReport(records, stats)
	if err != nil {
		return err
	}
	defer f.Close()

	out := c.String("out")
	if err := f.SaveAs(out); err != nil {
		return fmt.Errorf("save %s: %w", out, err)
	}
	log.Info().Str("file", out).Int("records", len(records)).Msg("report written")
	return nil
}

func runClear(c *cli.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ClearAll(c.Context)
	if err != nil {
		return err
	}
	log.Info().Int64("deleted", n).Msg("flight records cleared")
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Helpers
// ═══════════════════════════════════════════════════════════════════════════

func openStore(cfg *Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.DBPath, storage.Options{Unique: cfg.Unique})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}

func newProvider(cfg *Config) *services.Client {
	return services.NewClient(cfg.AviationStackKey).
		WithBaseURL(cfg.AviationStackURL).
		WithTimeout(cfg.ProviderTimeout).
		WithRateLimit(cfg.ProviderRate)
}

// loadWithProvider loads config for commands that call the provider.
func loadWithProvider() (*Config, *storage.Store, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.RequireProvider(); err != nil {
		return nil, nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}
