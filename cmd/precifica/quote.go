package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"marketplace-pricing/api"
	"marketplace-pricing/decision/marketplace"
)

// =============================================================================
// QUOTE COMMAND
// =============================================================================

// formFlags maps CLI flags to form fields. Values are raw strings and go
// through the same lenient parser as the web form.
var formFlags = []struct {
	flag  string
	field string
	usage string
}{
	{"custo", marketplace.FieldCost, "Product cost (R$)"},
	{"embalagem", marketplace.FieldPackaging, "Packaging cost (R$)"},
	{"taxa-fixa", marketplace.FieldFixedFee, "Fixed fee per sale (R$)"},
	{"margem", marketplace.FieldMargin, "Target profit margin (%)"},
	{"comissao", marketplace.FieldCommission, "Commission (%)"},
	{"subsidio", marketplace.FieldSubsidy, "Shipping subsidy (%)"},
	{"das", marketplace.FieldDAS, "DAS tax (%)"},
	{"descontos", marketplace.FieldDiscounts, "Discounts (%)"},
	{"outras", marketplace.FieldOther, "Other deductions (%)"},
	{"spike-day", marketplace.FieldSpike, "Spike day surcharge (%)"},
	{"categoria", marketplace.FieldCategory, "Mercado Livre category (padrao, isenta)"},
	{"custos-adic", marketplace.FieldExtraCosts, "Mercado Livre extra fixed costs (R$)"},
	{"impostos", marketplace.FieldTaxes, "Mercado Livre taxes (%)"},
}

func quoteFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "from-state",
			Usage: "Start from the stored form; flags override stored fields",
		},
		&cli.BoolFlag{
			Name:  "simulate",
			Usage: "Compare profit at the neighbouring Shopee brackets",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   "table",
			Usage:   "Output format (table, json)",
		},
	}
	for _, f := range formFlags {
		flags = append(flags, &cli.StringFlag{Name: f.flag, Usage: f.usage})
	}
	return flags
}

func quoteCommand() *cli.Command {
	aliases := map[marketplace.Kind][]string{
		marketplace.MercadoLivre: {"mercadolivre"},
	}

	cmd := &cli.Command{
		Name:  "quote",
		Usage: "Compute the sale price for a marketplace",
	}
	for _, k := range marketplace.Kinds() {
		kind := k
		cmd.Subcommands = append(cmd.Subcommands, &cli.Command{
			Name:    kind.String(),
			Aliases: aliases[kind],
			Usage:   "Quote for " + kind.String(),
			Flags:   quoteFlags(),
			Action: func(c *cli.Context) error {
				return runQuote(c, kind)
			},
		})
	}
	return cmd
}

func runQuote(c *cli.Context, kind marketplace.Kind) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	form := marketplace.Form{}
	if c.Bool("from-state") {
		forms, err := e.forms(ctx)
		if err != nil {
			return fmt.Errorf("failed to open form state: %w", err)
		}
		form, err = forms.Load(ctx, kind)
		forms.Close()
		if err != nil {
			return err
		}
	}
	for _, f := range formFlags {
		if c.IsSet(f.flag) {
			form[f.field] = c.String(f.flag)
		}
	}

	var calc *marketplace.Calculator
	if kind == marketplace.Shopee {
		store, err := e.openSchedules(ctx)
		if err != nil {
			e.log.Warn().Err(err).Msg("Fee schedule store unavailable")
		}
		calc, _ = e.calculator(ctx, store)
		if store != nil {
			store.Close()
		}
	} else {
		calc = marketplace.NewCalculator(nil)
	}

	in := marketplace.ParseForm(marketplace.Filter(kind, form))
	views := make([]api.QuoteView, 0, 2)
	for _, q := range calc.Quote(kind, in) {
		var sim []marketplace.SimulationRow
		if c.Bool("simulate") {
			sim = calc.Simulate(q, in)
		}
		views = append(views, api.NewQuoteView(q, sim))
	}

	w := c.App.Writer
	switch c.String("format") {
	case "json":
		return writeJSON(w, api.QuoteResponse{Marketplace: kind, Quotes: views})
	default:
		for _, v := range views {
			writeQuoteTable(w, v)
		}
		return nil
	}
}
