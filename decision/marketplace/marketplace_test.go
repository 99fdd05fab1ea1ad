package marketplace

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"marketplace-pricing/decision/brackets"
	"marketplace-pricing/decision/solver"
	perrors "marketplace-pricing/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertFixed(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if s := got.StringFixed(2); s != want {
		t.Fatalf("%s: expected %s, got %s", what, want, s)
	}
}

func assertOverflow(t *testing.T, q Quote) {
	t.Helper()
	if q.Valid {
		t.Fatal("expected invalid quote")
	}
	if q.Notice == nil || q.Notice.Code != perrors.CodeDeductionOverflow {
		t.Fatalf("expected deduction overflow notice, got %+v", q.Notice)
	}
	if q.Notice.Message != perrors.MsgDeductionOverflow {
		t.Fatalf("unexpected notice message %q", q.Notice.Message)
	}
	if !q.SalePrice.IsZero() || !q.Breakdown.Profit.IsZero() || !q.Breakdown.TotalFees.IsZero() {
		t.Fatalf("expected zeroed figures, got %+v", q)
	}
	if !q.CommissionRate.IsZero() || !q.FixedFee.IsZero() {
		t.Fatalf("expected zeroed fees, got rate %s fee %s", q.CommissionRate, q.FixedFee)
	}
}

func TestPriceFlatRate(t *testing.T) {
	tests := []struct {
		name       string
		in         Inputs
		wantPrice  string
		wantProfit string
	}{
		{
			name:       "commission only",
			in:         Inputs{Cost: dec("50"), Margin: dec("0.10"), Commission: dec("0.10")},
			wantPrice:  "61.11",
			wantProfit: "5.00",
		},
		{
			name:       "fixed fee",
			in:         Inputs{Cost: dec("50"), Margin: dec("0.10"), Commission: dec("0.10"), FixedFee: dec("5")},
			wantPrice:  "66.67",
			wantProfit: "5.00",
		},
		{
			name: "every deduction",
			in: Inputs{
				Cost: dec("40"), Packaging: dec("2"), Margin: dec("0.2"),
				Commission: dec("0.16"), Subsidy: dec("0.02"), DAS: dec("0.06"),
				Discounts: dec("0.03"), Other: dec("0.03"),
			},
			// 42*1.2 / 0.70
			wantPrice:  "72.00",
			wantProfit: "8.40",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := PriceFlatRate(Magalu, tc.in)
			if !q.Valid {
				t.Fatal("expected valid quote")
			}
			assertFixed(t, "price", q.SalePrice, tc.wantPrice)
			assertFixed(t, "profit", q.Breakdown.Profit, tc.wantProfit)

			sum := q.Breakdown.TotalFees.Add(q.Breakdown.Profit).Add(tc.in.UnitCost())
			assertFixed(t, "fees+profit+cost", sum, tc.wantPrice)
		})
	}
}

func TestPriceFlatRateOverflow(t *testing.T) {
	for _, rates := range [][2]string{{"0.60", "0.40"}, {"0.90", "0.30"}} {
		q := PriceFlatRate(Magalu, Inputs{Cost: dec("50"), Commission: dec(rates[0]), DAS: dec(rates[1])})
		assertOverflow(t, q)
		if q.Notice.Subject != "magalu" {
			t.Fatalf("expected notice subject magalu, got %q", q.Notice.Subject)
		}
	}
}

func TestPriceMercadoLivre(t *testing.T) {
	tests := []struct {
		name        string
		in          Inputs
		wantClassic string
		wantPremium string
		wantFee     [2]string
	}{
		{
			name:        "above mid band",
			in:          Inputs{Cost: dec("100"), Margin: dec("0.30")},
			wantClassic: "146.07",
			wantPremium: "154.76",
			wantFee:     [2]string{"0.00", "0.00"},
		},
		{
			name:        "mid band fixed fee",
			in:          Inputs{Cost: dec("50"), Margin: dec("0.20")},
			wantClassic: "66.00",
			wantPremium: "67.00",
			wantFee:     [2]string{"6.00", "7.00"},
		},
		{
			name:        "mid band upper edge",
			in:          Inputs{Cost: dec("100"), Margin: dec("0.20")},
			wantClassic: "126.00",
			wantPremium: "127.00",
			wantFee:     [2]string{"6.00", "7.00"},
		},
		{
			name:        "mid band lower edge",
			in:          Inputs{Cost: dec("12.50")},
			wantClassic: "18.50",
			wantPremium: "19.50",
			wantFee:     [2]string{"6.00", "7.00"},
		},
		{
			name:        "low price high commission",
			in:          Inputs{Cost: dec("10")},
			wantClassic: "20.00",
			wantPremium: "20.00",
			wantFee:     [2]string{"0.00", "0.00"},
		},
		{
			name:        "zero base",
			in:          Inputs{},
			wantClassic: "6.00",
			wantPremium: "7.00",
			wantFee:     [2]string{"6.00", "7.00"},
		},
		{
			name:        "exempt category",
			in:          Inputs{Cost: dec("100"), Margin: dec("0.30"), Category: CategoryExempt},
			wantClassic: "130.00",
			wantPremium: "130.00",
			wantFee:     [2]string{"0.00", "0.00"},
		},
		{
			name:        "taxes and extra costs",
			in:          Inputs{Cost: dec("50"), Margin: dec("0.20"), Taxes: dec("0.10"), ExtraCosts: dec("3")},
			wantClassic: "76.67",
			wantPremium: "77.78",
			wantFee:     [2]string{"6.00", "7.00"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			classic := PriceMercadoLivre(ClassicSchedule(), tc.in)
			premium := PriceMercadoLivre(PremiumSchedule(), tc.in)

			if classic.Tier != TierClassic || premium.Tier != TierPremium {
				t.Fatalf("unexpected tiers %q %q", classic.Tier, premium.Tier)
			}
			assertFixed(t, "classic price", classic.SalePrice, tc.wantClassic)
			assertFixed(t, "premium price", premium.SalePrice, tc.wantPremium)
			assertFixed(t, "classic fee", classic.FixedFee, tc.wantFee[0])
			assertFixed(t, "premium fee", premium.FixedFee, tc.wantFee[1])
		})
	}
}

func TestPriceMercadoLivreBreakdown(t *testing.T) {
	q := PriceMercadoLivre(ClassicSchedule(), Inputs{Cost: dec("50"), Margin: dec("0.20"), ExtraCosts: dec("2")})
	// (60 + 6 + 2) / 1
	assertFixed(t, "price", q.SalePrice, "68.00")
	assertFixed(t, "net", q.Breakdown.NetReceived, "60.00")
	assertFixed(t, "profit", q.Breakdown.Profit, "10.00")
	assertFixed(t, "margin", q.Breakdown.EffectiveMargin.Mul(decimal.NewFromInt(100)), "14.71")
}

func TestPriceMercadoLivreOverflow(t *testing.T) {
	q := PriceMercadoLivre(ClassicSchedule(), Inputs{Cost: dec("10"), Taxes: dec("0.50")})
	assertOverflow(t, q)
	if !q.TotalRate.Equal(dec("1")) {
		t.Fatalf("expected total rate 1, got %s", q.TotalRate)
	}
}

func TestPriceShopee(t *testing.T) {
	s := solver.New(brackets.DefaultShopee())

	q := PriceShopee(s, Inputs{Cost: dec("25"), Packaging: dec("5"), Margin: dec("0.15")})
	if !q.Valid {
		t.Fatal("expected valid quote")
	}
	assertFixed(t, "price", q.SalePrice, "52.31")
	assertFixed(t, "fixed fee", q.FixedFee, "4.00")
	assertFixed(t, "profit", q.Breakdown.Profit, "7.85")
	if m := q.Breakdown.EffectiveMargin.StringFixed(4); m != "0.1500" {
		t.Fatalf("expected effective margin 0.1500, got %s", m)
	}
	if q.Solution == nil || !q.Solution.Converged {
		t.Fatal("expected solver details")
	}
}

func TestPriceShopeeIgnoresFormFees(t *testing.T) {
	s := solver.New(brackets.DefaultShopee())

	plain := PriceShopee(s, Inputs{Cost: dec("150"), Margin: dec("0.10")})
	typed := PriceShopee(s, Inputs{Cost: dec("150"), Margin: dec("0.10"), Commission: dec("0.5"), FixedFee: dec("99")})

	assertFixed(t, "price", plain.SalePrice, "231.58")
	if !plain.SalePrice.Equal(typed.SalePrice) {
		t.Fatalf("form commission leaked into the Shopee price: %s vs %s", plain.SalePrice, typed.SalePrice)
	}
}

func TestPriceShopeeSpikeDay(t *testing.T) {
	s := solver.New(brackets.DefaultShopee())

	q := PriceShopee(s, Inputs{Cost: dec("30"), Margin: dec("0.15"), Spike: dec("0.05")})
	// 34 / 0.60
	assertFixed(t, "price", q.SalePrice, "56.67")
	assertFixed(t, "spike", q.Breakdown.Spike, "2.83")
	assertFixed(t, "total rate", q.TotalRate.Mul(decimal.NewFromInt(100)), "25.00")
}

func TestPriceShopeeOverflow(t *testing.T) {
	s := solver.New(brackets.DefaultShopee())

	q := PriceShopee(s, Inputs{Cost: dec("10"), Margin: dec("0.86")})
	assertOverflow(t, q)
	if q.Solution == nil || q.Solution.Valid {
		t.Fatal("expected invalid solver details")
	}
}

func TestSimulateBrackets(t *testing.T) {
	table := brackets.DefaultShopee()
	s := solver.New(table)

	t.Run("first bracket", func(t *testing.T) {
		in := Inputs{Cost: dec("30"), Margin: dec("0.15")}
		rows := SimulateBrackets(table, PriceShopee(s, in), in)
		if len(rows) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(rows))
		}
		if rows[0].Label != SimCurrent || rows[1].Label != SimHigher {
			t.Fatalf("unexpected labels %s %s", rows[0].Label, rows[1].Label)
		}
		assertFixed(t, "current profit", rows[0].Profit, "7.85")
		assertFixed(t, "higher price", rows[1].TestPrice, "80.00")
		assertFixed(t, "higher profit", rows[1].Profit, "22.80")
		if m := rows[1].Margin.StringFixed(3); m != "0.285" {
			t.Fatalf("expected higher margin 0.285, got %s", m)
		}
	})

	t.Run("last bracket", func(t *testing.T) {
		in := Inputs{Cost: dec("150"), Margin: dec("0.10")}
		rows := SimulateBrackets(table, PriceShopee(s, in), in)
		if len(rows) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(rows))
		}
		if rows[0].Label != SimLower || rows[1].Label != SimCurrent {
			t.Fatalf("unexpected labels %s %s", rows[0].Label, rows[1].Label)
		}
		assertFixed(t, "lower price", rows[0].TestPrice, "199.99")
		assertFixed(t, "lower profit", rows[0].Profit, "1.99")
		assertFixed(t, "lower fee", rows[0].Bracket.FixedFee, "20.00")
	})

	t.Run("invalid quote", func(t *testing.T) {
		in := Inputs{Cost: dec("10"), Margin: dec("0.86")}
		if rows := SimulateBrackets(table, PriceShopee(s, in), in); rows != nil {
			t.Fatalf("expected no rows, got %d", len(rows))
		}
	})
}

func TestCalculatorDispatch(t *testing.T) {
	c := NewCalculator(nil)

	tests := []struct {
		kind      Kind
		form      Form
		wantCount int
		wantPrice string
	}{
		{kind: Magalu, form: Form{"custo": "50", "margem_lucro": "10", "comissao": "10"}, wantCount: 1, wantPrice: "61.11"},
		{kind: Shopee, form: Form{"custo": "R$ 30,00", "margem_lucro": "15"}, wantCount: 1, wantPrice: "52.31"},
		{kind: MercadoLivre, form: Form{"custo": "100", "margem_lucro": "30"}, wantCount: 2, wantPrice: "146.07"},
	}

	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			quotes := c.QuoteForm(tc.kind, tc.form)
			if len(quotes) != tc.wantCount {
				t.Fatalf("expected %d quotes, got %d", tc.wantCount, len(quotes))
			}
			if quotes[0].Marketplace != tc.kind {
				t.Fatalf("expected marketplace %s, got %s", tc.kind, quotes[0].Marketplace)
			}
			assertFixed(t, "price", quotes[0].SalePrice, tc.wantPrice)
		})
	}

	if got := c.Quote(Kind(42), Inputs{}); got != nil {
		t.Fatalf("expected no quotes for unknown kind, got %d", len(got))
	}
}

func TestCalculatorIsolatesMarketplaces(t *testing.T) {
	c := NewCalculator(nil)
	in := Inputs{Cost: dec("30"), Margin: dec("0.15"), Commission: dec("0.90"), DAS: dec("0.10")}

	magalu := c.Quote(Magalu, in)[0]
	shopee := c.Quote(Shopee, Inputs{Cost: dec("30"), Margin: dec("0.15")})[0]

	if magalu.Valid {
		t.Fatal("expected the Magalu quote to overflow")
	}
	assertFixed(t, "shopee price", shopee.SalePrice, "52.31")
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "ml", want: MercadoLivre},
		{in: " ML ", want: MercadoLivre},
		{in: "mercadolivre", want: MercadoLivre},
		{in: "shopee", want: Shopee},
		{in: "Magalu", want: Magalu},
		{in: "amazon", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseKind(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestKindJSON(t *testing.T) {
	raw, err := json.Marshal(map[string]Kind{"m": Shopee})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"m":"shopee"}` {
		t.Fatalf("unexpected json %s", raw)
	}

	var k Kind
	if err := json.Unmarshal([]byte(`"magalu"`), &k); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if k != Magalu {
		t.Fatalf("expected magalu, got %s", k)
	}
	if err := json.Unmarshal([]byte(`"nope"`), &k); err == nil {
		t.Fatal("expected error for unknown marketplace")
	}
}

func TestNegativeCostIsReadAsZero(t *testing.T) {
	c := NewCalculator(nil)

	for _, k := range Kinds() {
		t.Run(k.String(), func(t *testing.T) {
			negative := c.QuoteForm(k, Form{"custo": "-5", "margem_lucro": "15", "comissao": "10"})
			zero := c.QuoteForm(k, Form{"custo": "0", "margem_lucro": "15", "comissao": "10"})

			for i, q := range negative {
				if !q.Valid || q.Notice != nil {
					t.Fatalf("quote %d: expected a valid quote without notice, got %+v", i, q)
				}
				if q.SalePrice.IsNegative() {
					t.Fatalf("quote %d: negative sale price %s", i, q.SalePrice)
				}
				if !q.SalePrice.Equal(zero[i].SalePrice) {
					t.Fatalf("quote %d: expected %s, got %s", i, zero[i].SalePrice, q.SalePrice)
				}
			}
		})
	}
}
