// Package solver resolves the sale price whose own commission bracket was used
// to compute it.
//
// For a bracket b the price is
//
//	PV = (cost + b.FixedFee) / (1 - (b.CommissionRate + margin + Σ additional))
//
// but b itself depends on PV. The solver iterates from the bracket containing
// the raw cost until the bracket stops changing, and falls back to testing
// every bracket when the iteration yields no usable price.
package solver

import (
	"github.com/shopspring/decimal"

	"marketplace-pricing/decision/brackets"
)

// MaxIterations bounds the fixed-point iteration.
const MaxIterations = 10

var one = decimal.NewFromInt(1)

// Input is a pricing request. Rates are fractions; Additional holds the
// extra percentage deductions (subsidy, tax, discount, other, spike day).
type Input struct {
	Cost         decimal.Decimal
	TargetMargin decimal.Decimal
	Additional   []decimal.Decimal
}

// DeductionRate returns the margin plus every additional rate, excluding the
// bracket commission.
func (in Input) DeductionRate() decimal.Decimal {
	total := in.TargetMargin
	for _, r := range in.Additional {
		total = total.Add(r)
	}
	return total
}

// Result is the resolved price. Valid is false when every candidate bracket
// pushes the total deduction to 100% or more; price and fees are zero then.
type Result struct {
	SalePrice      decimal.Decimal `json:"sale_price"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	FixedFee       decimal.Decimal `json:"fixed_fee"`
	Valid          bool            `json:"valid"`

	BracketIndex int  `json:"bracket_index"`
	Iterations   int  `json:"iterations"`
	Converged    bool `json:"converged"`
	Fallback     bool `json:"fallback"`
}

// Solver resolves prices against one bracket table.
type Solver struct {
	table         *brackets.Table
	maxIterations int
}

// New creates a solver over table.
func New(table *brackets.Table) *Solver {
	return &Solver{table: table, maxIterations: MaxIterations}
}

// Table returns the bracket table the solver uses.
func (s *Solver) Table() *brackets.Table {
	return s.table
}

// Solve returns the self-consistent sale price for in. It never fails: an
// impossible request comes back with Valid set to false.
func (s *Solver) Solve(in Input) Result {
	if in.Cost.IsNegative() {
		return Result{}
	}

	deduction := in.DeductionRate()

	res := s.iterate(in.Cost, deduction)
	if res.Valid && res.SalePrice.IsPositive() {
		return res
	}

	if fb, ok := s.scan(in.Cost, deduction); ok {
		fb.Iterations = res.Iterations
		return fb
	}

	return Result{Iterations: res.Iterations}
}

// iterate runs the fixed-point search starting from the bracket of the raw
// cost. When the bound is hit the last candidate is accepted as is.
func (s *Solver) iterate(cost, deduction decimal.Decimal) Result {
	working := s.table.Lookup(cost)
	price := cost

	for i := 1; i <= s.maxIterations; i++ {
		denom, ok := denominator(working, deduction)
		if !ok {
			return Result{Iterations: i}
		}

		candidate := cost.Add(working.FixedFee).Div(denom)
		idx := s.table.IndexOf(candidate)
		next := s.table.At(idx)

		if next.SameFees(working) {
			return Result{
				SalePrice:      candidate,
				CommissionRate: working.CommissionRate,
				FixedFee:       working.FixedFee,
				Valid:          true,
				BracketIndex:   idx,
				Iterations:     i,
				Converged:      true,
			}
		}

		working = next
		price = candidate
	}

	return Result{
		SalePrice:      price,
		CommissionRate: working.CommissionRate,
		FixedFee:       working.FixedFee,
		Valid:          true,
		BracketIndex:   s.table.IndexOf(price),
		Iterations:     s.maxIterations,
	}
}

// scan tries each bracket in order and keeps the first whose price lands
// inside its own range.
func (s *Solver) scan(cost, deduction decimal.Decimal) (Result, bool) {
	for i := 0; i < s.table.Len(); i++ {
		b := s.table.At(i)
		denom, ok := denominator(b, deduction)
		if !ok {
			continue
		}

		candidate := cost.Add(b.FixedFee).Div(denom)
		if !b.Contains(candidate) {
			continue
		}

		return Result{
			SalePrice:      candidate,
			CommissionRate: b.CommissionRate,
			FixedFee:       b.FixedFee,
			Valid:          true,
			BracketIndex:   i,
			Converged:      true,
			Fallback:       true,
		}, true
	}
	return Result{}, false
}

func denominator(b brackets.FeeBracket, deduction decimal.Decimal) (decimal.Decimal, bool) {
	denom := one.Sub(b.CommissionRate.Add(deduction))
	return denom, denom.IsPositive()
}
