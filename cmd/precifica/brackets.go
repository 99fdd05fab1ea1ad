package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"marketplace-pricing/api"
	"marketplace-pricing/decision/brackets"
	"marketplace-pricing/decision/marketplace"
)

// =============================================================================
// BRACKETS COMMAND
// =============================================================================

var errNoClickHouse = errors.New("fee schedules need ClickHouse; set CLICKHOUSE_HOST")

func bracketsCommand() *cli.Command {
	mp := &cli.StringFlag{
		Name:  "marketplace",
		Value: marketplace.Shopee.String(),
		Usage: "Marketplace owning the schedule",
	}

	return &cli.Command{
		Name:  "brackets",
		Usage: "Manage Shopee commission brackets",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the Shopee bracket table in use",
				Action: runBracketsShow,
			},
			{
				Name:   "list",
				Usage:  "List stored fee schedules",
				Flags:  []cli.Flag{mp},
				Action: runBracketsList,
			},
			{
				Name:  "import",
				Usage: "Store a bracket table from a JSON file",
				Flags: []cli.Flag{
					mp,
					&cli.StringFlag{
						Name:     "file",
						Usage:    "JSON array of {min_price, max_price, commission_rate, fixed_fee}",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Where the table came from (defaults to the file name)",
					},
					&cli.BoolFlag{
						Name:  "activate",
						Usage: "Make the imported schedule active",
					},
				},
				Action: runBracketsImport,
			},
			{
				Name:  "activate",
				Usage: "Make a stored schedule active",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Schedule id",
						Required: true,
					},
				},
				Action: runBracketsActivate,
			},
		},
	}
}

// readBrackets decodes and validates a bracket table.
func readBrackets(r io.Reader) (*brackets.Table, error) {
	var rows []brackets.FeeBracket
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("invalid bracket file: %w", err)
	}
	return brackets.NewTable(rows)
}

func runBracketsShow(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	store, err := e.openSchedules(c.Context)
	if err != nil {
		e.log.Warn().Err(err).Msg("Fee schedule store unavailable")
	}
	if store != nil {
		defer store.Close()
	}

	calc, sch := e.calculator(c.Context, store)
	w := c.App.Writer
	if sch != nil {
		fmt.Fprintf(w, "Schedule %s (%s)\n", sch.ID, sch.Source)
	} else {
		fmt.Fprintln(w, "Built-in brackets")
	}
	for _, b := range calc.Brackets().Brackets() {
		v := api.NewBracketView(b)
		fmt.Fprintf(w, "  %-18s %s%%  + R$ %s\n", v.Label, formatRatePct(b), v.FixedFee)
	}
	return nil
}

func formatRatePct(b brackets.FeeBracket) string {
	return b.CommissionRate.Shift(2).StringFixed(2)
}

func runBracketsList(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	store, err := e.openSchedules(c.Context)
	if err != nil {
		return err
	}
	if store == nil {
		return errNoClickHouse
	}
	defer store.Close()

	schedules, err := store.ListSchedules(c.Context, c.String("marketplace"))
	if err != nil {
		return err
	}

	w := c.App.Writer
	if len(schedules) == 0 {
		fmt.Fprintln(w, "No fee schedules stored")
		return nil
	}
	for _, s := range schedules {
		active := " "
		if s.IsActive {
			active = "*"
		}
		fmt.Fprintf(w, "%s %s  %s  %2d brackets  %s  %s\n",
			active, s.ID, s.CreatedAt.Format("2006-01-02 15:04"), s.BracketCount, s.Hash[:12], s.Source)
	}
	return nil
}

func runBracketsImport(c *cli.Context) error {
	path := c.String("file")
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	table, err := readBrackets(f)
	if err != nil {
		return err
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	store, err := e.openSchedules(c.Context)
	if err != nil {
		return err
	}
	if store == nil {
		return errNoClickHouse
	}
	defer store.Close()

	source := c.String("source")
	if source == "" {
		source = filepath.Base(path)
	}

	sch, created, err := store.ImportSchedule(c.Context, c.String("marketplace"), source, table)
	if err != nil {
		return err
	}
	if created {
		e.log.Info().Str("schedule_id", sch.ID.String()).Int("brackets", table.Len()).Msg("Fee schedule imported")
	} else {
		e.log.Info().Str("schedule_id", sch.ID.String()).Msg("Identical fee schedule already stored")
	}

	if c.Bool("activate") && !sch.IsActive {
		if err := store.ActivateSchedule(c.Context, sch.ID); err != nil {
			return err
		}
		e.log.Info().Str("schedule_id", sch.ID.String()).Msg("Fee schedule activated")
	}

	fmt.Fprintln(c.App.Writer, sch.ID)
	return nil
}

func runBracketsActivate(c *cli.Context) error {
	id, err := uuid.Parse(c.String("id"))
	if err != nil {
		return fmt.Errorf("invalid schedule id: %w", err)
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	store, err := e.openSchedules(c.Context)
	if err != nil {
		return err
	}
	if store == nil {
		return errNoClickHouse
	}
	defer store.Close()

	// only valid tables may become active
	if _, err := store.LoadTable(c.Context, id); err != nil {
		return err
	}
	if err := store.ActivateSchedule(c.Context, id); err != nil {
		return err
	}
	e.log.Info().Str("schedule_id", id.String()).Msg("Fee schedule activated")
	return nil
}
