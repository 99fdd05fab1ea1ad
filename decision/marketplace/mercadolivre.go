package marketplace

import "github.com/shopspring/decimal"

// MercadoLivreSchedule is the fee schedule of one listing tier. The commission
// band is picked from the base price cost·(1+margin):
//
//	exempt category          no fees
//	base == 0                MidFee
//	base <  LowThreshold     LowRate, no fixed fee
//	base <= MidThreshold     MidFee, no commission
//	above                    HighRate, no fixed fee
type MercadoLivreSchedule struct {
	Tier         Tier
	LowThreshold decimal.Decimal
	MidThreshold decimal.Decimal
	LowRate      decimal.Decimal
	MidFee       decimal.Decimal
	HighRate     decimal.Decimal
}

// ClassicSchedule is the Clássico listing tier.
func ClassicSchedule() MercadoLivreSchedule {
	return MercadoLivreSchedule{
		Tier:         TierClassic,
		LowThreshold: decimal.RequireFromString("12.50"),
		MidThreshold: decimal.NewFromInt(120),
		LowRate:      decimal.RequireFromString("0.50"),
		MidFee:       decimal.NewFromInt(6),
		HighRate:     decimal.RequireFromString("0.11"),
	}
}

// PremiumSchedule is the Premium listing tier.
func PremiumSchedule() MercadoLivreSchedule {
	s := ClassicSchedule()
	s.Tier = TierPremium
	s.MidFee = decimal.NewFromInt(7)
	s.HighRate = decimal.RequireFromString("0.16")
	return s
}

// Fees returns the commission rate and fixed fee for a base price.
func (s MercadoLivreSchedule) Fees(category Category, base decimal.Decimal) (rate, fixedFee decimal.Decimal) {
	switch {
	case category == CategoryExempt:
		return decimal.Zero, decimal.Zero
	case base.IsZero():
		return decimal.Zero, s.MidFee
	case base.LessThan(s.LowThreshold):
		return s.LowRate, decimal.Zero
	case base.LessThanOrEqual(s.MidThreshold):
		return decimal.Zero, s.MidFee
	default:
		return s.HighRate, decimal.Zero
	}
}

// PriceMercadoLivre prices one tier:
//
//	PV = (cost·(1+margin) + fixedFee + extraCosts) / (1 − (commission + taxes))
func PriceMercadoLivre(s MercadoLivreSchedule, in Inputs) Quote {
	cost := in.UnitCost()
	base := cost.Mul(one.Add(in.Margin))

	rate, fixedFee := s.Fees(in.Category, base)
	total := rate.Add(in.Taxes)

	denom := one.Sub(total)
	if !denom.IsPositive() {
		return overflow(MercadoLivre, s.Tier, total)
	}

	price := base.Add(fixedFee).Add(in.ExtraCosts).Div(denom)
	rates := Breakdown{Commission: rate, Tax: in.Taxes}

	return Quote{
		Marketplace:    MercadoLivre,
		Tier:           s.Tier,
		SalePrice:      price,
		CommissionRate: rate,
		FixedFee:       fixedFee,
		TotalRate:      total,
		Valid:          true,
		Breakdown:      itemize(price, cost, fixedFee, in.ExtraCosts, rates),
	}
}
