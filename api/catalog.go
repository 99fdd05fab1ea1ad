package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"marketplace-pricing/decision/catalog"
	perrors "marketplace-pricing/pkg/errors"
)

// =============================================================================
// COST LOOKUP ENDPOINTS
// =============================================================================

// CostResponse is the body of GET /preco-custo/{sku}.
type CostResponse struct {
	SKU       string      `json:"sku"`
	Name      string      `json:"nome"`
	CostPrice json.Number `json:"preco_custo"`
}

// SearchItem is one typeahead suggestion.
type SearchItem struct {
	ID   string `json:"id"`
	SKU  string `json:"sku"`
	Name string `json:"nome"`
}

func (s *Server) handleCostLookup(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")

	p, err := s.resolver.LookupBySKU(r.Context(), sku)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		s.legacyError(w, http.StatusNotFound, perrors.NewNotFound(sku))
		return
	case err != nil:
		s.legacyError(w, http.StatusInternalServerError, perrors.NewUpstreamUnavailable(sku))
		return
	}

	s.jsonResponse(w, http.StatusOK, CostResponse{
		SKU:       p.SKU,
		Name:      p.Name,
		CostPrice: json.Number(p.CostPrice.String()),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	field := catalog.ParseField(r.URL.Query().Get("field"))

	items := []SearchItem{}
	found, err := s.resolver.Search(r.Context(), q, field)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
	case err != nil:
		// the typeahead expects an array even on failure
		s.jsonResponse(w, http.StatusInternalServerError, items)
		return
	}

	for _, p := range found {
		items = append(items, SearchItem{ID: p.ID, SKU: p.SKU, Name: p.Name})
	}
	s.jsonResponse(w, http.StatusOK, items)
}

func (s *Server) legacyError(w http.ResponseWriter, status int, e *perrors.Error) {
	s.jsonResponse(w, status, map[string]string{"erro": e.Message})
}
