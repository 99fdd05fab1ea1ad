package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"marketplace-pricing/db/formstate"
	"marketplace-pricing/decision/marketplace"
)

// =============================================================================
// STATE COMMAND
// =============================================================================

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Inspect and edit the stored marketplace forms",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Print the stored form of a marketplace",
				ArgsUsage: "<ml|shopee|magalu>",
				Action:    runStateShow,
			},
			{
				Name:      "set",
				Usage:     "Set fields of a stored form",
				ArgsUsage: "<ml|shopee|magalu> field=value...",
				Action:    runStateSet,
			},
			{
				Name:      "shared",
				Usage:     "Set a shared field (" + strings.Join(marketplace.SharedFields(), ", ") + ") on every form",
				ArgsUsage: "<field> <value>",
				Action:    runStateShared,
			},
		},
	}
}

// parseAssignments turns field=value arguments into a form.
func parseAssignments(args []string) (marketplace.Form, error) {
	form := marketplace.Form{}
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		form[field] = value
	}
	return form, nil
}

func writeForm(w io.Writer, k marketplace.Kind, form marketplace.Form) {
	fmt.Fprintf(w, "%s (%s)\n", k, formstate.Key(k))
	names := make([]string, 0, len(form))
	for name := range form {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, form[name])
	}
}

func runStateShow(c *cli.Context) error {
	kind, err := marketplace.ParseKind(c.Args().First())
	if err != nil {
		return err
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	store, err := e.forms(c.Context)
	if err != nil {
		return err
	}
	defer store.Close()

	form, err := store.Load(c.Context, kind)
	if err != nil {
		return err
	}
	writeForm(c.App.Writer, kind, form)
	return nil
}

func runStateSet(c *cli.Context) error {
	kind, err := marketplace.ParseKind(c.Args().First())
	if err != nil {
		return err
	}
	updates, err := parseAssignments(c.Args().Tail())
	if err != nil {
		return err
	}
	for field := range updates {
		if len(marketplace.Filter(kind, marketplace.Form{field: ""})) == 0 {
			return fmt.Errorf("unknown field %q for %s", field, kind)
		}
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	store, err := e.forms(c.Context)
	if err != nil {
		return err
	}
	defer store.Close()

	form, err := store.Load(c.Context, kind)
	if err != nil {
		return err
	}
	for field, value := range updates {
		form[field] = value
	}
	if err := store.Save(c.Context, kind, form); err != nil {
		return err
	}
	writeForm(c.App.Writer, kind, form)
	return nil
}

func runStateShared(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("expected <field> <value>")
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	store, err := e.forms(c.Context)
	if err != nil {
		return err
	}
	defer store.Close()

	forms, err := formstate.ApplyShared(c.Context, store, c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return err
	}
	for _, k := range marketplace.Kinds() {
		writeForm(c.App.Writer, k, forms[k])
	}
	return nil
}
