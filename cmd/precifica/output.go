package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"marketplace-pricing/api"
	"marketplace-pricing/decision/marketplace"
)

// =============================================================================
// OUTPUT FORMATTERS
// =============================================================================

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

const boxWidth = 62

func boxLine(w io.Writer, label, value string) {
	fmt.Fprintf(w, "║  %-24s%-*s║\n", label, boxWidth-26, value)
}

func boxRule(w io.Writer, left, right string) {
	fmt.Fprintln(w, left+strings.Repeat("═", boxWidth)+right)
}

func writeQuoteTable(w io.Writer, v api.QuoteView) {
	title := strings.ToUpper(v.Marketplace.String())
	if v.Tier != marketplace.TierNone {
		title += " " + strings.ToUpper(string(v.Tier))
	}

	fmt.Fprintln(w)
	boxRule(w, "╔", "╗")
	fmt.Fprintf(w, "║  %-*s║\n", boxWidth-2, title)
	boxRule(w, "╠", "╣")

	if !v.Valid {
		msg := ""
		if v.Notice != nil {
			msg = v.Notice.Message
		}
		fmt.Fprintf(w, "║  %-*s║\n", boxWidth-2, truncate(msg, boxWidth-2))
		boxLine(w, "Total deductions:", v.TotalRateDisplay)
		boxRule(w, "╚", "╝")
		return
	}

	b := v.Breakdown
	boxLine(w, "Sale price:", v.SalePriceDisplay)
	boxLine(w, "Commission:", v.CommissionDisplay)
	boxLine(w, "Total deductions:", v.TotalRateDisplay)
	boxLine(w, "Fees:", b.TotalFeesDisplay)
	boxLine(w, "Net received:", "R$ "+b.NetReceived)
	boxLine(w, "Profit:", b.ProfitDisplay)
	boxLine(w, "Effective margin:", b.MarginDisplay)

	if v.Solution != nil {
		boxLine(w, "Bracket:", fmt.Sprintf("#%d (%d iterations)", v.Solution.Bracket, v.Solution.Iterations))
	}

	if len(v.Simulation) > 0 {
		boxRule(w, "╠", "╣")
		fmt.Fprintf(w, "║  %-*s║\n", boxWidth-2, "BRACKET SIMULATION")
		for _, row := range v.Simulation {
			line := fmt.Sprintf("%-8s %-16s R$ %-9s %s (%s)",
				row.Label, row.Bracket.Label, row.TestPrice, row.ProfitDisplay, row.MarginDisplay)
			fmt.Fprintf(w, "║  %-*s║\n", boxWidth-2, truncate(line, boxWidth-2))
		}
	}

	boxRule(w, "╚", "╝")
}

func truncate(s string, maxLen int) string {
	if len([]rune(s)) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
