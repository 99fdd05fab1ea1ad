// Package catalog resolves a SKU or product name typed by the user to the
// product's cost price in the upstream ERP catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrNotFound            = errors.New("product not found")
	ErrUpstreamUnavailable = errors.New("catalog unavailable")
)

// MaxResults bounds a search answer.
const MaxResults = 50

// Product is a catalog entry. Search results carry ID, SKU and Name only.
type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"nome"`
	CostPrice decimal.Decimal `json:"preco_custo"`
	Mappings  []Mapping       `json:"-"`
}

// Mapping is a marketplace listing linked to a product.
type Mapping struct {
	EcommerceID string
	SKU         string
	MappingID   string
	Price       string
}

// Catalog is the upstream product source.
type Catalog interface {
	SearchProducts(ctx context.Context, term string) ([]Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
}

// Field restricts what a search matches on.
type Field string

const (
	FieldSKU  Field = "sku"
	FieldName Field = "nome"
)

// ParseField maps a query parameter to a Field. Anything but "sku" searches
// names too.
func ParseField(s string) Field {
	if strings.EqualFold(strings.TrimSpace(s), string(FieldSKU)) {
		return FieldSKU
	}
	return FieldName
}

// Lookup weights. They add up: an exact code also starts with and contains
// the term.
const (
	lookupExact    = 1000
	lookupPrefix   = 800
	lookupContains = 600
	lookupName     = 400
)

// Search weights.
const (
	searchExact    = 1000
	searchPrefix   = 800
	searchContains = 400
	searchName     = 200
	searchNumeric  = 50
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

// Resolver answers cost lookups and typeahead searches. It keeps no state:
// every call hits the catalog.
type Resolver struct {
	catalog Catalog
	logger  zerolog.Logger
}

// NewResolver creates a resolver over c.
func NewResolver(c Catalog, logger zerolog.Logger) *Resolver {
	return &Resolver{
		catalog: c,
		logger:  logger.With().Str("component", "catalog").Logger(),
	}
}

// LookupBySKU finds the best match for term and returns its full record.
func (r *Resolver) LookupBySKU(ctx context.Context, term string) (*Product, error) {
	candidates, err := r.catalog.SearchProducts(ctx, term)
	if err != nil {
		r.logger.Error().Err(err).Str("term", term).Msg("Catalog search failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}

	needle := strings.ToLower(term)
	best, bestScore := 0, lookupScore(candidates[0], needle)
	for i := 1; i < len(candidates); i++ {
		if s := lookupScore(candidates[i], needle); s > bestScore {
			best, bestScore = i, s
		}
	}

	id := candidates[best].ID
	if id == "" {
		id = candidates[0].ID
	}
	if id == "" {
		return nil, ErrNotFound
	}

	p, err := r.catalog.GetProduct(ctx, id)
	if err != nil {
		r.logger.Error().Err(err).Str("id", id).Msg("Catalog get failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	r.logMappings(p)

	r.logger.Debug().
		Str("term", term).
		Str("sku", p.SKU).
		Int("score", bestScore).
		Int("candidates", len(candidates)).
		Msg("Resolved product")

	return p, nil
}

func lookupScore(p Product, needle string) int {
	code := strings.ToLower(p.SKU)
	name := strings.ToLower(p.Name)

	score := 0
	if code == needle {
		score += lookupExact
	}
	if code != "" && needle != "" {
		if strings.HasPrefix(code, needle) {
			score += lookupPrefix
		}
		if strings.Contains(code, needle) {
			score += lookupContains
		}
	}
	if name != "" && needle != "" && strings.Contains(name, needle) {
		score += lookupName
	}
	return score
}

func (r *Resolver) logMappings(p *Product) {
	ref := p.SKU
	if ref == "" {
		ref = p.ID
	}

	if len(p.Mappings) == 0 {
		r.logger.Debug().Str("product", ref).Msg("No marketplace mappings")
		return
	}
	for i, m := range p.Mappings {
		r.logger.Debug().
			Str("product", ref).
			Int("index", i).
			Str("ecommerce_id", m.EcommerceID).
			Str("mapped_sku", m.SKU).
			Str("mapping_id", m.MappingID).
			Str("price", m.Price).
			Msg("Marketplace mapping")
	}
}

// Search returns up to MaxResults products ordered by relevance. A query
// without a hyphen is also searched with a trailing hyphen so composite SKUs
// ("12570-KIT2") show up for their base code. The second search is best
// effort.
func (r *Resolver) Search(ctx context.Context, query string, field Field) ([]Product, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrNotFound
	}

	found, err := r.catalog.SearchProducts(ctx, q)
	if err != nil {
		r.logger.Error().Err(err).Str("query", q).Msg("Catalog search failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if !strings.Contains(q, "-") {
		extra, err := r.catalog.SearchProducts(ctx, q+"-")
		if err != nil {
			r.logger.Warn().Err(err).Str("query", q+"-").Msg("Composite SKU search failed")
		} else {
			found = append(found, extra...)
		}
	}

	candidates := dedupe(found)

	needle := strings.ToLower(q)
	if field == FieldSKU {
		kept := candidates[:0]
		for _, p := range candidates {
			if strings.Contains(strings.ToLower(p.SKU), needle) {
				kept = append(kept, p)
			}
		}
		candidates = kept
	}
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}

	numeric := digitsOnly.MatchString(q)
	scores := make([]int, len(candidates))
	for i, p := range candidates {
		scores[i] = searchScore(p, q, needle, field, numeric)
	}

	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})

	if len(idx) > MaxResults {
		idx = idx[:MaxResults]
	}
	out := make([]Product, 0, len(idx))
	for _, i := range idx {
		p := candidates[i]
		out = append(out, Product{ID: p.ID, SKU: p.SKU, Name: p.Name})
	}
	return out, nil
}

func searchScore(p Product, q, needle string, field Field, numeric bool) int {
	sku := strings.ToLower(p.SKU)

	score := 0
	if sku == needle {
		score += searchExact
	}
	if strings.HasPrefix(sku, needle) {
		score += searchPrefix
	}
	if strings.Contains(sku, needle) {
		score += searchContains
	}
	if field != FieldSKU && strings.Contains(strings.ToLower(p.Name), needle) {
		score += searchName
	}
	if numeric && strings.HasPrefix(p.SKU, q) {
		score += searchNumeric
	}
	return score
}

// dedupe drops repeated (id, sku) pairs, keeping first occurrences. A missing
// id falls back to the sku.
func dedupe(products []Product) []Product {
	seen := make(map[string]struct{}, len(products))
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if p.ID == "" {
			p.ID = p.SKU
		}
		key := p.ID + "|" + p.SKU
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
