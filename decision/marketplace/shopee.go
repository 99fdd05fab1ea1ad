package marketplace

import (
	"github.com/shopspring/decimal"

	"marketplace-pricing/decision/brackets"
	"marketplace-pricing/decision/solver"
)

// additionalRates lists the Shopee deductions besides commission and margin,
// in the order the solver receives them.
func additionalRates(in Inputs) []decimal.Decimal {
	return []decimal.Decimal{in.Subsidy, in.DAS, in.Discounts, in.Other, in.Spike}
}

func shopeeRates(in Inputs, commission decimal.Decimal) Breakdown {
	return Breakdown{
		Commission: commission,
		Subsidy:    in.Subsidy,
		Tax:        in.DAS,
		Discounts:  in.Discounts,
		Other:      in.Other,
		Spike:      in.Spike,
	}
}

// PriceShopee resolves the bracket-consistent Shopee price. The commission and
// fixed fee come from the bracket table, never from the form.
func PriceShopee(s *solver.Solver, in Inputs) Quote {
	cost := in.UnitCost()
	res := s.Solve(solver.Input{
		Cost:         cost,
		TargetMargin: in.Margin,
		Additional:   additionalRates(in),
	})

	extras := in.Subsidy.Add(in.DAS).Add(in.Discounts).Add(in.Other).Add(in.Spike)

	if !res.Valid {
		// report the rate that overflowed at the bracket of the raw cost
		b := s.Table().Lookup(cost)
		q := overflow(Shopee, TierNone, b.CommissionRate.Add(extras))
		q.Solution = &res
		return q
	}

	return Quote{
		Marketplace:    Shopee,
		SalePrice:      res.SalePrice,
		CommissionRate: res.CommissionRate,
		FixedFee:       res.FixedFee,
		TotalRate:      res.CommissionRate.Add(extras),
		Valid:          true,
		Breakdown:      itemize(res.SalePrice, cost, res.FixedFee, decimal.Zero, shopeeRates(in, res.CommissionRate)),
		Solution:       &res,
	}
}

// SimulationRow is the outcome of selling at TestPrice under Bracket.
type SimulationRow struct {
	Label     string              `json:"label"`
	Bracket   brackets.FeeBracket `json:"bracket"`
	TestPrice decimal.Decimal     `json:"test_price"`
	Profit    decimal.Decimal     `json:"profit"`
	Margin    decimal.Decimal     `json:"margin"`
}

// Simulation row labels.
const (
	SimLower   = "lower"
	SimCurrent = "current"
	SimHigher  = "higher"
)

var cent = decimal.RequireFromString("0.01")

// SimulateBrackets shows what the seller keeps at the top price of the bracket
// below the quote, at the quoted price itself, and at the floor of the bracket
// above. Invalid quotes produce no rows.
func SimulateBrackets(table *brackets.Table, q Quote, in Inputs) []SimulationRow {
	if !q.Valid || q.Marketplace != Shopee {
		return nil
	}

	idx := table.IndexOf(q.SalePrice)
	lower, higher := table.Neighbors(idx)
	cost := in.UnitCost()

	row := func(label string, price decimal.Decimal, b brackets.FeeBracket) SimulationRow {
		bd := itemize(price, cost, b.FixedFee, decimal.Zero, shopeeRates(in, b.CommissionRate))
		return SimulationRow{
			Label:     label,
			Bracket:   b,
			TestPrice: price,
			Profit:    bd.Profit,
			Margin:    bd.EffectiveMargin,
		}
	}

	var rows []SimulationRow
	if lower != nil {
		price := decimal.Max(decimal.Zero, lower.MaxPrice.Sub(cent))
		rows = append(rows, row(SimLower, price, *lower))
	}
	rows = append(rows, row(SimCurrent, q.SalePrice, table.At(idx)))
	if higher != nil {
		rows = append(rows, row(SimHigher, higher.MinPrice, *higher))
	}
	return rows
}
