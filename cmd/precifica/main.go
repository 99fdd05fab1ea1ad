// Precifica CLI - marketplace sale price calculator
//
// Usage:
//
//	precifica quote shopee --custo 30 --margem 15 [--simulate]
//	precifica serve --port 3000
//	precifica catalog lookup 12570
//	precifica brackets import --file shopee.json --activate
//	precifica state set shopee custo=30 margem_lucro=15
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"marketplace-pricing/api"
	"marketplace-pricing/db/clickhouse"
	"marketplace-pricing/db/formstate"
	"marketplace-pricing/decision/catalog"
	"marketplace-pricing/decision/marketplace"
	"marketplace-pricing/internal/config"
	"marketplace-pricing/internal/logger"
	"marketplace-pricing/pkg/tiny"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "precifica",
		Usage:   "Sale price calculator for Mercado Livre, Shopee and Magalu",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides LOG_LEVEL",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (console, json); overrides LOG_FORMAT",
			},
		},

		Commands: []*cli.Command{
			quoteCommand(),
			serveCommand(),
			catalogCommand(),
			bracketsCommand(),
			stateCommand(),
		},
	}
}

// env is what every command needs: configuration and a logger.
type env struct {
	cfg *config.Config
	log zerolog.Logger
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.LogFormat = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log}, nil
}

// openSchedules connects to the fee schedule store. It returns nil when
// ClickHouse is not configured.
func (e *env) openSchedules(ctx context.Context) (*clickhouse.Store, error) {
	if !e.cfg.ClickHouseEnabled() {
		return nil, nil
	}

	store, err := clickhouse.NewStore(e.cfg.ClickHouse())
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to reach ClickHouse: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// calculator builds a calculator from the active Shopee schedule, falling
// back to the built-in table when none is available.
func (e *env) calculator(ctx context.Context, store *clickhouse.Store) (*marketplace.Calculator, *clickhouse.Schedule) {
	if store == nil {
		return marketplace.NewCalculator(nil), nil
	}

	table, sch, err := store.LoadActiveTable(ctx, marketplace.Shopee.String())
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to load the active fee schedule, using built-in brackets")
		return marketplace.NewCalculator(nil), nil
	}
	if table == nil {
		e.log.Info().Msg("No active fee schedule, using built-in brackets")
		return marketplace.NewCalculator(nil), nil
	}

	e.log.Info().
		Str("schedule_id", sch.ID.String()).
		Int("brackets", table.Len()).
		Msg("Loaded Shopee fee schedule")
	return marketplace.NewCalculator(table), sch
}

func (e *env) resolver() *catalog.Resolver {
	client := tiny.NewClient(tiny.Config{
		BaseURL:    e.cfg.TinyBaseURL,
		Token:      e.cfg.TinyToken,
		Timeout:    e.cfg.TinyTimeout,
		MaxRetries: e.cfg.TinyMaxRetries,
	}, e.log)
	return catalog.NewResolver(catalog.NewTinyCatalog(client), e.log)
}

func (e *env) forms(ctx context.Context) (formstate.Store, error) {
	return formstate.Open(ctx, e.cfg.FormState(), e.log)
}

// =============================================================================
// SERVE COMMAND (API SERVER)
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the pricing API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "API server port; overrides PORT",
			},
			&cli.StringFlag{
				Name:  "cors-origins",
				Usage: "Comma-separated list of allowed CORS origins; overrides CORS_ORIGINS",
			},
			&cli.StringFlag{
				Name:  "static-dir",
				Usage: "Directory served at /; overrides STATIC_DIR",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	cfg := api.DefaultConfig()
	cfg.Port = e.cfg.Port
	cfg.CORSOrigins = e.cfg.CORSOrigins
	cfg.StaticDir = e.cfg.StaticDir
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("cors-origins") {
		cfg.CORSOrigins = splitList(c.String("cors-origins"))
	}
	if c.IsSet("static-dir") {
		cfg.StaticDir = c.String("static-dir")
	}

	if e.cfg.TinyToken == "" {
		e.log.Warn().Msg("TINY_TOKEN is not set; cost lookups will fail")
	}

	forms, err := e.forms(ctx)
	if err != nil {
		return fmt.Errorf("failed to open form state: %w", err)
	}
	defer forms.Close()

	store, err := e.openSchedules(ctx)
	if err != nil {
		// the calculator works without stored schedules
		e.log.Warn().Err(err).Msg("Fee schedule store unavailable")
	}
	if store != nil {
		defer store.Close()
	}

	calc, sch := e.calculator(ctx, store)
	server := api.NewServer(calc, e.resolver(), forms, cfg, e.log).WithSchedule(sch)
	if store != nil {
		server.WithReadinessCheck("clickhouse", store.Ping)
	}

	return server.StartWithGracefulShutdown(ctx)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
