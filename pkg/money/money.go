// Package money provides lenient parsing and pt-BR display formatting of
// monetary amounts and percentages.
//
// The parser here is a UI convenience: it never fails, it returns zero for
// anything it cannot read. Pricing code works on exact decimals and should not
// depend on it.
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// maxNumberLen bounds the length of a number accepted from a form field.
const maxNumberLen = 24

var (
	currencySymbol = regexp.MustCompile(`(?i)r\$`)
	plainNumber    = regexp.MustCompile(`^-?\d*\.?\d*$`)
	hundred        = decimal.NewFromInt(100)
	printer        = message.NewPrinter(language.BrazilianPortuguese)
)

// ParseLenient reads a user-typed number such as "R$ 1.234,56", "12,5" or
// "19.90". A comma marks the decimal separator and turns every period into a
// thousands separator; without a comma the first period is the decimal point
// and later periods are dropped. Anything left that is not a plain number,
// exponent notation included, yields zero, as do numbers longer than
// maxNumberLen characters.
func ParseLenient(raw string) decimal.Decimal {
	s := currencySymbol.ReplaceAllString(raw, "")
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimSuffix(s, "%")
	s = normalizeSeparators(s)
	if s == "" || len(s) > maxNumberLen || !plainNumber.MatchString(s) {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParsePercent reads a percentage typed as "15" or "15,5" and returns it as a
// fraction (0.15, 0.155).
func ParsePercent(raw string) decimal.Decimal {
	return ParseLenient(raw).Div(hundred)
}

func normalizeSeparators(s string) string {
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	}
	if i := strings.Index(s, "."); i >= 0 {
		return s[:i+1] + strings.ReplaceAll(s[i+1:], ".", "")
	}
	return s
}

// Sanitize normalizes a number while it is being typed: only digits and
// separators survive, the decimal separator becomes a single comma and the
// fraction is cut to maxDecimals digits (a negative maxDecimals keeps all).
func Sanitize(raw string, maxDecimals int) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	v := b.String()

	if strings.Contains(v, ",") {
		v = strings.ReplaceAll(v, ".", "")
	} else if i := strings.Index(v, "."); i >= 0 {
		v = v[:i] + "," + strings.ReplaceAll(v[i+1:], ".", "")
	}

	intPart, fracPart, hasComma := strings.Cut(v, ",")
	if !hasComma {
		return v
	}
	fracPart = strings.ReplaceAll(fracPart, ",", "")
	if maxDecimals >= 0 && len(fracPart) > maxDecimals {
		fracPart = fracPart[:maxDecimals]
	}
	return intPart + "," + fracPart
}

// FormatBRL renders an amount as Brazilian reais, e.g. "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	if d.Round(2).IsNegative() {
		return "-R$ " + FormatNumber(d.Abs(), 2)
	}
	return "R$ " + FormatNumber(d, 2)
}

// FormatPercent renders a fraction as a percentage with two fraction digits,
// e.g. 0.155 -> "15,50%".
func FormatPercent(rate decimal.Decimal) string {
	return FormatNumber(rate.Mul(hundred), 2) + "%"
}

// FormatRate renders a fraction the way percent inputs display it, without the
// sign: 0.155 -> "15,50".
func FormatRate(rate decimal.Decimal) string {
	return FormatNumber(rate.Mul(hundred), 2)
}

// FormatNumber renders d with pt-BR grouping and exactly places fraction digits.
func FormatNumber(d decimal.Decimal, places int32) string {
	return printer.Sprintf(fmt.Sprintf("%%.%df", places), d.Round(places).InexactFloat64())
}
