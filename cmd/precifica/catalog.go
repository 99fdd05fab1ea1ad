package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"marketplace-pricing/api"
	"marketplace-pricing/decision/catalog"
	"marketplace-pricing/pkg/money"
)

// =============================================================================
// CATALOG COMMAND
// =============================================================================

func catalogCommand() *cli.Command {
	format := &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "table",
		Usage:   "Output format (table, json)",
	}

	return &cli.Command{
		Name:  "catalog",
		Usage: "Query product costs in Tiny",
		Subcommands: []*cli.Command{
			{
				Name:      "lookup",
				Usage:     "Resolve the cost price of the best match for a SKU",
				ArgsUsage: "<sku>",
				Flags:     []cli.Flag{format},
				Action:    runLookup,
			},
			{
				Name:      "search",
				Usage:     "Search products by SKU or name",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					format,
					&cli.StringFlag{
						Name:  "field",
						Value: string(catalog.FieldName),
						Usage: "Match on sku or nome",
					},
				},
				Action: runSearch,
			},
		},
	}
}

func runLookup(c *cli.Context) error {
	term := c.Args().First()
	if term == "" {
		return errors.New("a SKU is required")
	}

	e, err := setup(c)
	if err != nil {
		return err
	}

	p, err := e.resolver().LookupBySKU(c.Context, term)
	if err != nil {
		return err
	}

	w := c.App.Writer
	if c.String("format") == "json" {
		return writeJSON(w, api.CostResponse{SKU: p.SKU, Name: p.Name, CostPrice: json.Number(p.CostPrice.String())})
	}
	fmt.Fprintf(w, "%s  %s  %s\n", p.SKU, p.Name, money.FormatBRL(p.CostPrice))
	return nil
}

func runSearch(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	found, err := e.resolver().Search(c.Context, c.Args().First(), catalog.ParseField(c.String("field")))
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return err
	}

	items := make([]api.SearchItem, 0, len(found))
	for _, p := range found {
		items = append(items, api.SearchItem{ID: p.ID, SKU: p.SKU, Name: p.Name})
	}

	w := c.App.Writer
	if c.String("format") == "json" {
		return writeJSON(w, items)
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "No products found")
		return nil
	}
	for _, it := range items {
		fmt.Fprintf(w, "%-20s %-10s %s\n", it.SKU, it.ID, it.Name)
	}
	return nil
}
