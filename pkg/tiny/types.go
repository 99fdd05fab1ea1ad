package tiny

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"marketplace-pricing/pkg/money"
)

// Tiny answers status "OK" or "Erro". Code 20 means the query matched nothing
// and code 6 means the account hit its request quota.
const (
	statusOK      = "OK"
	codeNoRecords = "20"
	codeRateLimit = "6"
)

// Text decodes a JSON string or number as a string. Tiny is inconsistent
// about quoting ids and codes.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("tiny: text field: %w", err)
	}
	*t = Text(n.String())
	return nil
}

func (t Text) String() string { return string(t) }

// Amount decodes a price given as a JSON number or string. Strings go through
// the lenient parser so "10,50" and "" are accepted.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	a.Decimal = money.ParseLenient(string(t))
	return nil
}

// MarshalJSON encodes the amount as a JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// APIError is a "status": "Erro" answer.
type APIError struct {
	Code     string
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("tiny: error code %s", e.Code)
	}
	return fmt.Sprintf("tiny: error code %s: %s", e.Code, strings.Join(e.Messages, "; "))
}

// ProductSummary is one entry of a product search.
type ProductSummary struct {
	ID          Text   `json:"id"`
	Code        Text   `json:"codigo"`
	Name        string `json:"nome"`
	Description string `json:"descricao"`
	Title       string `json:"titulo"`
	CostPrice   Amount `json:"preco_custo"`
	Price       Amount `json:"preco"`
	Situation   string `json:"situacao"`
}

// DisplayName returns the first non-empty of description, name and title.
func (p ProductSummary) DisplayName() string {
	for _, s := range []string{p.Description, p.Name, p.Title} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Mapping links a product to a marketplace listing.
type Mapping struct {
	EcommerceID Text `json:"idEcommerce"`
	SKU         Text `json:"skuMapeamento"`
	MappingID   Text `json:"idMapeamento"`
	Price       Text `json:"preco"`
}

// Mappings decodes the "mapeamentos" list, whose items may or may not be
// wrapped in a "mapeamento" object.
type Mappings []Mapping

func (m *Mappings) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	var items []struct {
		Wrapped *Mapping `json:"mapeamento"`
		Mapping
	}
	if err := json.Unmarshal(data, &items); err != nil {
		// an empty object or string shows up instead of [] on some accounts
		*m = nil
		return nil
	}

	out := make(Mappings, 0, len(items))
	for _, it := range items {
		if it.Wrapped != nil {
			out = append(out, *it.Wrapped)
			continue
		}
		out = append(out, it.Mapping)
	}
	*m = out
	return nil
}

// Product is the full record returned by produto.obter.
type Product struct {
	ID          Text     `json:"id"`
	Code        Text     `json:"codigo"`
	Name        string   `json:"nome"`
	Description string   `json:"descricao"`
	Unit        string   `json:"unidade"`
	Price       Amount   `json:"preco"`
	CostPrice   Amount   `json:"preco_custo"`
	AvgCost     Amount   `json:"preco_custo_medio"`
	Situation   string   `json:"situacao"`
	Mappings    Mappings `json:"mapeamentos"`
}

type apiErrorItem struct {
	Message string `json:"erro"`
}

type returnHeader struct {
	Status    string         `json:"status"`
	ErrorCode Text           `json:"codigo_erro"`
	Errors    []apiErrorItem `json:"erros"`
}

func (h returnHeader) err() error {
	if strings.EqualFold(h.Status, statusOK) {
		return nil
	}
	e := &APIError{Code: h.ErrorCode.String()}
	for _, item := range h.Errors {
		e.Messages = append(e.Messages, item.Message)
	}
	return e
}

type searchResponse struct {
	Return struct {
		returnHeader
		Products []struct {
			Product ProductSummary `json:"produto"`
		} `json:"produtos"`
	} `json:"retorno"`
}

type getResponse struct {
	Return struct {
		returnHeader
		Product Product `json:"produto"`
	} `json:"retorno"`
}
