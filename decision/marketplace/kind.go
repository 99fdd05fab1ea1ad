// Package marketplace holds the per-marketplace pricing rules. Every rule is a
// pure function of its inputs; nothing is shared across marketplaces.
package marketplace

import (
	"fmt"
	"strings"
)

// Kind identifies a marketplace.
type Kind int

const (
	MercadoLivre Kind = iota
	Shopee
	Magalu
)

var kindNames = map[Kind]string{
	MercadoLivre: "ml",
	Shopee:       "shopee",
	Magalu:       "magalu",
}

// Kinds returns every supported marketplace in display order.
func Kinds() []Kind {
	return []Kind{MercadoLivre, Shopee, Magalu}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText encodes the kind by its short name.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown marketplace %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText accepts the names understood by ParseKind.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind resolves a marketplace name. Long names are accepted for CLI use.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ml", "mercadolivre", "mercado-livre", "meli":
		return MercadoLivre, nil
	case "shopee":
		return Shopee, nil
	case "magalu", "magazineluiza":
		return Magalu, nil
	default:
		return 0, fmt.Errorf("unknown marketplace %q", s)
	}
}
