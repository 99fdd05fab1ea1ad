package marketplace

import (
	"github.com/shopspring/decimal"

	"marketplace-pricing/decision/brackets"
	"marketplace-pricing/decision/solver"
	perrors "marketplace-pricing/pkg/errors"
)

var one = decimal.NewFromInt(1)

// Tier distinguishes the Mercado Livre listing types. Other marketplaces leave
// it empty.
type Tier string

const (
	TierNone    Tier = ""
	TierClassic Tier = "classico"
	TierPremium Tier = "premium"
)

// Breakdown itemizes where the sale price goes. Every value is in BRL except
// EffectiveMargin, a fraction of the sale price.
type Breakdown struct {
	Commission      decimal.Decimal `json:"commission"`
	Subsidy         decimal.Decimal `json:"subsidy"`
	Tax             decimal.Decimal `json:"tax"`
	Discounts       decimal.Decimal `json:"discounts"`
	Other           decimal.Decimal `json:"other"`
	Spike           decimal.Decimal `json:"spike"`
	FixedFee        decimal.Decimal `json:"fixed_fee"`
	ExtraCosts      decimal.Decimal `json:"extra_costs"`
	TotalFees       decimal.Decimal `json:"total_fees"`
	NetReceived     decimal.Decimal `json:"net_received"`
	Profit          decimal.Decimal `json:"profit"`
	EffectiveMargin decimal.Decimal `json:"effective_margin"`
}

// Quote is the priced result for one marketplace (and tier). When Valid is
// false the deductions reached 100%: figures are zero and Notice is set.
type Quote struct {
	Marketplace    Kind            `json:"marketplace"`
	Tier           Tier            `json:"tier,omitempty"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	FixedFee       decimal.Decimal `json:"fixed_fee"`
	TotalRate      decimal.Decimal `json:"total_rate"`
	Valid          bool            `json:"valid"`
	Breakdown      Breakdown       `json:"breakdown"`
	Notice         *perrors.Error  `json:"notice,omitempty"`

	// Shopee only.
	Solution *solver.Result `json:"solution,omitempty"`
}

// overflow is the quote for deductions at or above 100%. Only the offending
// total rate is kept; price, fees and breakdown stay zero.
func overflow(k Kind, tier Tier, totalRate decimal.Decimal) Quote {
	return Quote{
		Marketplace: k,
		Tier:        tier,
		TotalRate:   totalRate,
		Notice:      perrors.NewDeductionOverflow(k.String()),
	}
}

// itemize fills a breakdown from the sale price and the rates applied to it.
func itemize(price, unitCost, fixedFee, extraCosts decimal.Decimal, rates Breakdown) Breakdown {
	b := Breakdown{
		Commission: price.Mul(rates.Commission),
		Subsidy:    price.Mul(rates.Subsidy),
		Tax:        price.Mul(rates.Tax),
		Discounts:  price.Mul(rates.Discounts),
		Other:      price.Mul(rates.Other),
		Spike:      price.Mul(rates.Spike),
		FixedFee:   fixedFee,
		ExtraCosts: extraCosts,
	}
	b.TotalFees = b.Commission.Add(b.Subsidy).Add(b.Tax).Add(b.Discounts).
		Add(b.Other).Add(b.Spike).Add(fixedFee).Add(extraCosts)
	b.NetReceived = price.Sub(b.TotalFees)
	b.Profit = b.NetReceived.Sub(unitCost)
	if price.IsPositive() {
		b.EffectiveMargin = b.Profit.Div(price)
	}
	return b
}

// Calculator prices forms for every marketplace. It is safe for concurrent
// use: the bracket table is immutable and the rules are pure.
type Calculator struct {
	solver       *solver.Solver
	mercadoLivre []MercadoLivreSchedule
}

// NewCalculator creates a calculator resolving Shopee prices against table.
// A nil table selects the built-in Shopee brackets.
func NewCalculator(table *brackets.Table) *Calculator {
	if table == nil {
		table = brackets.DefaultShopee()
	}
	return &Calculator{
		solver:       solver.New(table),
		mercadoLivre: []MercadoLivreSchedule{ClassicSchedule(), PremiumSchedule()},
	}
}

// Brackets returns the Shopee table in use.
func (c *Calculator) Brackets() *brackets.Table {
	return c.solver.Table()
}

// Quote prices in for marketplace k. Mercado Livre yields one quote per tier;
// the others yield exactly one.
func (c *Calculator) Quote(k Kind, in Inputs) []Quote {
	switch k {
	case MercadoLivre:
		out := make([]Quote, 0, len(c.mercadoLivre))
		for _, s := range c.mercadoLivre {
			out = append(out, PriceMercadoLivre(s, in))
		}
		return out
	case Shopee:
		return []Quote{PriceShopee(c.solver, in)}
	case Magalu:
		return []Quote{PriceFlatRate(Magalu, in)}
	default:
		return nil
	}
}

// QuoteForm parses a raw form and prices it.
func (c *Calculator) QuoteForm(k Kind, f Form) []Quote {
	return c.Quote(k, ParseForm(Filter(k, f)))
}

// Simulate compares a Shopee quote against the neighbouring brackets.
func (c *Calculator) Simulate(q Quote, in Inputs) []SimulationRow {
	return SimulateBrackets(c.solver.Table(), q, in)
}
