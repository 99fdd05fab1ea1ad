// Package brackets provides progressive commission tables keyed by sale price.
package brackets

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeBracket is one commission tier. A price p belongs to the bracket when
// MinPrice <= p < MaxPrice; a nil MaxPrice is unbounded.
type FeeBracket struct {
	MinPrice       decimal.Decimal  `json:"min_price"`
	MaxPrice       *decimal.Decimal `json:"max_price"`
	CommissionRate decimal.Decimal  `json:"commission_rate"`
	FixedFee       decimal.Decimal  `json:"fixed_fee"`
}

// Contains reports whether price falls inside the bracket's half-open range.
func (b FeeBracket) Contains(price decimal.Decimal) bool {
	if price.LessThan(b.MinPrice) {
		return false
	}
	return b.MaxPrice == nil || price.LessThan(*b.MaxPrice)
}

// SameFees reports whether two brackets charge the same rate and fixed fee.
func (b FeeBracket) SameFees(other FeeBracket) bool {
	return b.CommissionRate.Equal(other.CommissionRate) && b.FixedFee.Equal(other.FixedFee)
}

// Unbounded reports whether the bracket is the catch-all top tier.
func (b FeeBracket) Unbounded() bool {
	return b.MaxPrice == nil
}

func (b FeeBracket) String() string {
	if b.MaxPrice == nil {
		return fmt.Sprintf(">= %s", b.MinPrice.StringFixed(2))
	}
	return fmt.Sprintf("%s..%s", b.MinPrice.StringFixed(2), b.MaxPrice.StringFixed(2))
}

// Validation errors
var (
	ErrEmptyTable     = errors.New("bracket table is empty")
	ErrNotAnchored    = errors.New("first bracket must start at zero")
	ErrGap            = errors.New("brackets are not contiguous")
	ErrEmptyRange     = errors.New("bracket range is empty")
	ErrBoundedTop     = errors.New("last bracket must be unbounded")
	ErrUnboundedInner = errors.New("only the last bracket may be unbounded")
	ErrNegativeFee    = errors.New("commission rate and fixed fee must not be negative")
)

// Table is an immutable, validated, ascending list of brackets covering every
// price >= 0.
type Table struct {
	brackets []FeeBracket
}

// NewTable validates the brackets and returns a table holding its own copy.
func NewTable(brackets []FeeBracket) (*Table, error) {
	if len(brackets) == 0 {
		return nil, ErrEmptyTable
	}
	if !brackets[0].MinPrice.IsZero() {
		return nil, ErrNotAnchored
	}

	for i, b := range brackets {
		if b.CommissionRate.IsNegative() || b.FixedFee.IsNegative() {
			return nil, fmt.Errorf("bracket %d: %w", i, ErrNegativeFee)
		}

		last := i == len(brackets)-1
		if last {
			if b.MaxPrice != nil {
				return nil, ErrBoundedTop
			}
			continue
		}

		if b.MaxPrice == nil {
			return nil, fmt.Errorf("bracket %d: %w", i, ErrUnboundedInner)
		}
		if !b.MaxPrice.GreaterThan(b.MinPrice) {
			return nil, fmt.Errorf("bracket %d: %w", i, ErrEmptyRange)
		}
		if !b.MaxPrice.Equal(brackets[i+1].MinPrice) {
			return nil, fmt.Errorf("bracket %d ends at %s, next starts at %s: %w",
				i, b.MaxPrice.StringFixed(2), brackets[i+1].MinPrice.StringFixed(2), ErrGap)
		}
	}

	out := make([]FeeBracket, len(brackets))
	for i, b := range brackets {
		out[i] = b
		if b.MaxPrice != nil {
			upper := *b.MaxPrice
			out[i].MaxPrice = &upper
		}
	}
	return &Table{brackets: out}, nil
}

// MustNewTable is NewTable for tables known at compile time.
func MustNewTable(brackets []FeeBracket) *Table {
	t, err := NewTable(brackets)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of brackets.
func (t *Table) Len() int {
	return len(t.brackets)
}

// At returns the i-th bracket.
func (t *Table) At(i int) FeeBracket {
	return t.brackets[i]
}

// Brackets returns a copy of the table rows.
func (t *Table) Brackets() []FeeBracket {
	out := make([]FeeBracket, len(t.brackets))
	copy(out, t.brackets)
	return out
}

// IndexOf returns the index of the bracket containing price. Prices below
// zero resolve to the first bracket.
func (t *Table) IndexOf(price decimal.Decimal) int {
	for i, b := range t.brackets {
		if b.Contains(price) {
			return i
		}
	}
	return 0
}

// Lookup returns the bracket containing price.
func (t *Table) Lookup(price decimal.Decimal) FeeBracket {
	return t.brackets[t.IndexOf(price)]
}

// Neighbors returns the brackets directly below and above index i, if any.
func (t *Table) Neighbors(i int) (lower, higher *FeeBracket) {
	if i > 0 {
		b := t.brackets[i-1]
		lower = &b
	}
	if i+1 < len(t.brackets) {
		b := t.brackets[i+1]
		higher = &b
	}
	return lower, higher
}

func bound(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// DefaultShopee returns Shopee's commission table:
//
//	up to 79.99      20% + R$4
//	80 to 99.99      14% + R$16
//	100 to 199.99    14% + R$20
//	200 and above    14% + R$26
func DefaultShopee() *Table {
	return MustNewTable([]FeeBracket{
		{MinPrice: decimal.Zero, MaxPrice: bound(80), CommissionRate: decimal.RequireFromString("0.20"), FixedFee: decimal.NewFromInt(4)},
		{MinPrice: decimal.NewFromInt(80), MaxPrice: bound(100), CommissionRate: decimal.RequireFromString("0.14"), FixedFee: decimal.NewFromInt(16)},
		{MinPrice: decimal.NewFromInt(100), MaxPrice: bound(200), CommissionRate: decimal.RequireFromString("0.14"), FixedFee: decimal.NewFromInt(20)},
		{MinPrice: decimal.NewFromInt(200), CommissionRate: decimal.RequireFromString("0.14"), FixedFee: decimal.NewFromInt(26)},
	})
}
