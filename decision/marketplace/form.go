package marketplace

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"marketplace-pricing/pkg/money"
)

// Form holds the raw, user-typed field values of one marketplace form.
type Form map[string]string

// Field names shared by every form.
const (
	FieldCost       = "custo"
	FieldPackaging  = "embalagem"
	FieldFixedFee   = "taxa_fixa"
	FieldMargin     = "margem_lucro"
	FieldCommission = "comissao"
	FieldSubsidy    = "subsidio"
	FieldDAS        = "das"
	FieldDiscounts  = "descontos"
	FieldOther      = "outras"
	FieldSpike      = "spike_day"
)

// Mercado Livre only.
const (
	FieldCategory   = "categoria"
	FieldExtraCosts = "custos_adic"
	FieldTaxes      = "impostos"
)

var (
	baseFields = []string{
		FieldCost, FieldPackaging, FieldFixedFee, FieldMargin, FieldCommission,
		FieldSubsidy, FieldDAS, FieldDiscounts, FieldOther, FieldSpike,
	}
	mercadoLivreFields = []string{FieldCategory, FieldExtraCosts, FieldTaxes}

	percentFields = map[string]bool{
		FieldMargin: true, FieldCommission: true, FieldSubsidy: true, FieldDAS: true,
		FieldDiscounts: true, FieldOther: true, FieldSpike: true, FieldTaxes: true,
	}

	sharedFields = []string{FieldCost, FieldPackaging, FieldMargin, FieldDAS, FieldDiscounts}
)

// Fields returns the field names a marketplace form persists.
func Fields(k Kind) []string {
	out := append([]string(nil), baseFields...)
	if k == MercadoLivre {
		out = append(out, mercadoLivreFields...)
	}
	return out
}

// SharedFields returns the fields that can be typed once for all marketplaces.
func SharedFields() []string {
	return append([]string(nil), sharedFields...)
}

// IsPercent reports whether a field holds a percentage typed as 0-100.
func IsPercent(field string) bool {
	return percentFields[field]
}

// Filter returns a copy of f restricted to the fields known for k.
func Filter(k Kind, f Form) Form {
	out := make(Form)
	for _, name := range Fields(k) {
		if v, ok := f[name]; ok {
			out[name] = v
		}
	}
	return out
}

// ApplyShared sanitizes value and copies it into the field of every form.
// Missing forms are created.
func ApplyShared(forms map[Kind]Form, field, value string) error {
	shared := false
	for _, name := range sharedFields {
		if name == field {
			shared = true
			break
		}
	}
	if !shared {
		return fmt.Errorf("field %q is not shared", field)
	}

	clean := money.Sanitize(value, 2)
	for _, k := range Kinds() {
		if forms[k] == nil {
			forms[k] = make(Form)
		}
		forms[k][field] = clean
	}
	return nil
}

// Category is the Mercado Livre listing category.
type Category string

const (
	CategoryStandard Category = "padrao"
	CategoryExempt   Category = "isenta"
)

// Inputs are the parsed numeric values of a form. Rates are fractions.
type Inputs struct {
	Cost       decimal.Decimal
	Packaging  decimal.Decimal
	FixedFee   decimal.Decimal
	Margin     decimal.Decimal
	Commission decimal.Decimal
	Subsidy    decimal.Decimal
	DAS        decimal.Decimal
	Discounts  decimal.Decimal
	Other      decimal.Decimal
	Spike      decimal.Decimal

	Category   Category
	ExtraCosts decimal.Decimal
	Taxes      decimal.Decimal
}

// UnitCost is the product cost plus packaging.
func (in Inputs) UnitCost() decimal.Decimal {
	return in.Cost.Add(in.Packaging)
}

// ParseForm reads a raw form with the lenient parser. Unparseable or missing
// values become zero and percent fields are divided by 100. Negative amounts
// (cost, packaging, fixed fee, extra costs) are read as zero.
func ParseForm(f Form) Inputs {
	get := func(name string) decimal.Decimal { return parseField(f, name) }
	amount := func(name string) decimal.Decimal { return decimal.Max(get(name), decimal.Zero) }

	in := Inputs{
		Cost:       amount(FieldCost),
		Packaging:  amount(FieldPackaging),
		FixedFee:   amount(FieldFixedFee),
		Margin:     get(FieldMargin),
		Commission: get(FieldCommission),
		Subsidy:    get(FieldSubsidy),
		DAS:        get(FieldDAS),
		Discounts:  get(FieldDiscounts),
		Other:      get(FieldOther),
		Spike:      get(FieldSpike),
		ExtraCosts: amount(FieldExtraCosts),
		Taxes:      get(FieldTaxes),
		Category:   CategoryStandard,
	}

	if strings.EqualFold(strings.TrimSpace(f[FieldCategory]), string(CategoryExempt)) {
		in.Category = CategoryExempt
	}
	return in
}

func parseField(f Form, name string) decimal.Decimal {
	if IsPercent(name) {
		return money.ParsePercent(f[name])
	}
	return money.ParseLenient(f[name])
}
