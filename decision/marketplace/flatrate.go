package marketplace

import "github.com/shopspring/decimal"

// PriceFlatRate applies a single deduction rate to the whole price:
//
//	PV = (cost·(1+margin) + fixedFee) / (1 − (commission + subsidy + das + discounts + other))
//
// This is how Magalu is priced. The margin is a markup on cost.
func PriceFlatRate(k Kind, in Inputs) Quote {
	rates := Breakdown{
		Commission: in.Commission,
		Subsidy:    in.Subsidy,
		Tax:        in.DAS,
		Discounts:  in.Discounts,
		Other:      in.Other,
	}
	total := in.Commission.Add(in.Subsidy).Add(in.DAS).Add(in.Discounts).Add(in.Other)

	denom := one.Sub(total)
	if !denom.IsPositive() {
		return overflow(k, TierNone, total)
	}

	cost := in.UnitCost()
	price := cost.Mul(one.Add(in.Margin)).Add(in.FixedFee).Div(denom)

	return Quote{
		Marketplace:    k,
		SalePrice:      price,
		CommissionRate: in.Commission,
		FixedFee:       in.FixedFee,
		TotalRate:      total,
		Valid:          true,
		Breakdown:      itemize(price, cost, in.FixedFee, decimal.Zero, rates),
	}
}
