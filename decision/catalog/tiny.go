package catalog

import (
	"context"

	"marketplace-pricing/pkg/tiny"
)

var _ Catalog = (*TinyCatalog)(nil)

// TinyCatalog adapts the Tiny ERP client to Catalog.
type TinyCatalog struct {
	client *tiny.Client
}

// NewTinyCatalog wraps client.
func NewTinyCatalog(client *tiny.Client) *TinyCatalog {
	return &TinyCatalog{client: client}
}

func (t *TinyCatalog) SearchProducts(ctx context.Context, term string) ([]Product, error) {
	found, err := t.client.SearchProducts(ctx, term)
	if err != nil {
		return nil, err
	}

	out := make([]Product, 0, len(found))
	for _, p := range found {
		out = append(out, Product{
			ID:        p.ID.String(),
			SKU:       p.Code.String(),
			Name:      p.DisplayName(),
			CostPrice: p.CostPrice.Decimal,
		})
	}
	return out, nil
}

func (t *TinyCatalog) GetProduct(ctx context.Context, id string) (*Product, error) {
	p, err := t.client.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &Product{
		ID:        p.ID.String(),
		SKU:       p.Code.String(),
		Name:      p.Name,
		CostPrice: p.CostPrice.Decimal,
	}
	for _, m := range p.Mappings {
		out.Mappings = append(out.Mappings, Mapping{
			EcommerceID: m.EcommerceID.String(),
			SKU:         m.SKU.String(),
			MappingID:   m.MappingID.String(),
			Price:       m.Price.String(),
		})
	}
	return out, nil
}
