package api

import (
	"github.com/shopspring/decimal"

	"marketplace-pricing/decision/brackets"
	"marketplace-pricing/decision/marketplace"
	perrors "marketplace-pricing/pkg/errors"
	"marketplace-pricing/pkg/money"
)

// Amounts are rendered as fixed two-digit strings, rates with four digits,
// and each has a pt-BR display companion.

// QuoteView is the JSON rendering of a quote.
type QuoteView struct {
	Marketplace       marketplace.Kind `json:"marketplace"`
	Tier              marketplace.Tier `json:"tier,omitempty"`
	Valid             bool             `json:"valid"`
	SalePrice         string           `json:"sale_price"`
	SalePriceDisplay  string           `json:"sale_price_display"`
	CommissionRate    string           `json:"commission_rate"`
	CommissionDisplay string           `json:"commission_display"`
	FixedFee          string           `json:"fixed_fee"`
	TotalRate         string           `json:"total_rate"`
	TotalRateDisplay  string           `json:"total_rate_display"`
	Breakdown         BreakdownView    `json:"breakdown"`
	Notice            *perrors.Error   `json:"notice,omitempty"`
	Solution          *SolutionView    `json:"solution,omitempty"`
	Simulation        []SimulationView `json:"simulation,omitempty"`
}

// BreakdownView itemizes a quote.
type BreakdownView struct {
	Commission       string `json:"commission"`
	Subsidy          string `json:"subsidy"`
	Tax              string `json:"tax"`
	Discounts        string `json:"discounts"`
	Other            string `json:"other"`
	Spike            string `json:"spike"`
	FixedFee         string `json:"fixed_fee"`
	ExtraCosts       string `json:"extra_costs"`
	TotalFees        string `json:"total_fees"`
	NetReceived      string `json:"net_received"`
	Profit           string `json:"profit"`
	ProfitDisplay    string `json:"profit_display"`
	EffectiveMargin  string `json:"effective_margin"`
	MarginDisplay    string `json:"margin_display"`
	TotalFeesDisplay string `json:"total_fees_display"`
}

// SolutionView describes how a Shopee price was resolved.
type SolutionView struct {
	Bracket    int  `json:"bracket"`
	Iterations int  `json:"iterations"`
	Converged  bool `json:"converged"`
	Fallback   bool `json:"fallback"`
}

// SimulationView is one row of the bracket comparison.
type SimulationView struct {
	Label         string      `json:"label"`
	Bracket       BracketView `json:"bracket"`
	TestPrice     string      `json:"test_price"`
	Profit        string      `json:"profit"`
	ProfitDisplay string      `json:"profit_display"`
	Margin        string      `json:"margin"`
	MarginDisplay string      `json:"margin_display"`
}

// BracketView is a commission bracket. MaxPrice is empty for the top bracket.
type BracketView struct {
	Label          string `json:"label"`
	MinPrice       string `json:"min_price"`
	MaxPrice       string `json:"max_price,omitempty"`
	CommissionRate string `json:"commission_rate"`
	FixedFee       string `json:"fixed_fee"`
}

func amount(d decimal.Decimal) string { return d.StringFixed(2) }

func rate(d decimal.Decimal) string { return d.StringFixed(4) }

// NewQuoteView renders q with its optional simulation rows.
func NewQuoteView(q marketplace.Quote, sim []marketplace.SimulationRow) QuoteView {
	b := q.Breakdown
	v := QuoteView{
		Marketplace:       q.Marketplace,
		Tier:              q.Tier,
		Valid:             q.Valid,
		SalePrice:         amount(q.SalePrice),
		SalePriceDisplay:  money.FormatBRL(q.SalePrice),
		CommissionRate:    rate(q.CommissionRate),
		CommissionDisplay: money.FormatPercent(q.CommissionRate),
		FixedFee:          amount(q.FixedFee),
		TotalRate:         rate(q.TotalRate),
		TotalRateDisplay:  money.FormatPercent(q.TotalRate),
		Breakdown: BreakdownView{
			Commission:       amount(b.Commission),
			Subsidy:          amount(b.Subsidy),
			Tax:              amount(b.Tax),
			Discounts:        amount(b.Discounts),
			Other:            amount(b.Other),
			Spike:            amount(b.Spike),
			FixedFee:         amount(b.FixedFee),
			ExtraCosts:       amount(b.ExtraCosts),
			TotalFees:        amount(b.TotalFees),
			NetReceived:      amount(b.NetReceived),
			Profit:           amount(b.Profit),
			ProfitDisplay:    money.FormatBRL(b.Profit),
			EffectiveMargin:  rate(b.EffectiveMargin),
			MarginDisplay:    money.FormatPercent(b.EffectiveMargin),
			TotalFeesDisplay: money.FormatBRL(b.TotalFees),
		},
		Notice: q.Notice,
	}

	if q.Solution != nil {
		v.Solution = &SolutionView{
			Bracket:    q.Solution.BracketIndex,
			Iterations: q.Solution.Iterations,
			Converged:  q.Solution.Converged,
			Fallback:   q.Solution.Fallback,
		}
	}

	for _, row := range sim {
		v.Simulation = append(v.Simulation, SimulationView{
			Label:         row.Label,
			Bracket:       NewBracketView(row.Bracket),
			TestPrice:     amount(row.TestPrice),
			Profit:        amount(row.Profit),
			ProfitDisplay: money.FormatBRL(row.Profit),
			Margin:        rate(row.Margin),
			MarginDisplay: money.FormatPercent(row.Margin),
		})
	}
	return v
}

// NewBracketView renders a bracket.
func NewBracketView(b brackets.FeeBracket) BracketView {
	v := BracketView{
		Label:          b.String(),
		MinPrice:       amount(b.MinPrice),
		CommissionRate: rate(b.CommissionRate),
		FixedFee:       amount(b.FixedFee),
	}
	if b.MaxPrice != nil {
		v.MaxPrice = amount(*b.MaxPrice)
	}
	return v
}
