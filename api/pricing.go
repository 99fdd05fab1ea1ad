package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"marketplace-pricing/db/formstate"
	"marketplace-pricing/decision/marketplace"
)

// =============================================================================
// QUOTE ENDPOINT
// =============================================================================

// QuoteRequest prices a raw form. Without fields the stored form of the
// marketplace is priced.
type QuoteRequest struct {
	Marketplace string           `json:"marketplace"`
	Fields      marketplace.Form `json:"fields"`
	Simulate    bool             `json:"simulate"`
}

// QuoteResponse holds one quote per marketplace tier.
type QuoteResponse struct {
	Marketplace marketplace.Kind `json:"marketplace"`
	Quotes      []QuoteView      `json:"quotes"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	kind, err := marketplace.ParseKind(req.Marketplace)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	form := req.Fields
	if form == nil {
		form, err = s.forms.Load(r.Context(), kind)
		if err != nil {
			s.logger.Error().Err(err).Str("marketplace", kind.String()).Msg("Failed to load form state")
			s.jsonError(w, http.StatusInternalServerError, "failed to load form state")
			return
		}
	}

	in := marketplace.ParseForm(marketplace.Filter(kind, form))
	quotes := s.calculator.Quote(kind, in)

	resp := QuoteResponse{Marketplace: kind, Quotes: make([]QuoteView, 0, len(quotes))}
	for _, q := range quotes {
		var sim []marketplace.SimulationRow
		if req.Simulate {
			sim = s.calculator.Simulate(q, in)
		}
		resp.Quotes = append(resp.Quotes, NewQuoteView(q, sim))
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// BRACKETS ENDPOINT
// =============================================================================

// BracketsResponse describes the Shopee table in use.
type BracketsResponse struct {
	Source     string        `json:"source"`
	ScheduleID string        `json:"schedule_id,omitempty"`
	Hash       string        `json:"hash,omitempty"`
	Brackets   []BracketView `json:"brackets"`
}

// Bracket table sources
const (
	SourceBuiltin    = "builtin"
	SourceClickHouse = "clickhouse"
)

func (s *Server) handleBrackets(w http.ResponseWriter, r *http.Request) {
	resp := BracketsResponse{Source: SourceBuiltin}
	if s.schedule != nil {
		resp.Source = SourceClickHouse
		resp.ScheduleID = s.schedule.ID.String()
		resp.Hash = s.schedule.Hash
	}

	for _, b := range s.calculator.Brackets().Brackets() {
		resp.Brackets = append(resp.Brackets, NewBracketView(b))
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// FORM STATE ENDPOINTS
// =============================================================================

// StateResponse holds the raw values of a marketplace form.
type StateResponse struct {
	Marketplace marketplace.Kind `json:"marketplace"`
	Fields      marketplace.Form `json:"fields"`
}

// SharedStateRequest sets one shared field on every marketplace form.
type SharedStateRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	kind, err := marketplace.ParseKind(chi.URLParam(r, "marketplace"))
	if err != nil {
		s.jsonError(w, http.StatusNotFound, err.Error())
		return
	}

	form, err := s.forms.Load(r.Context(), kind)
	if err != nil {
		s.logger.Error().Err(err).Str("key", formstate.Key(kind)).Msg("Failed to load form state")
		s.jsonError(w, http.StatusInternalServerError, "failed to load form state")
		return
	}
	s.jsonResponse(w, http.StatusOK, StateResponse{Marketplace: kind, Fields: form})
}

func (s *Server) handlePutState(w http.ResponseWriter, r *http.Request) {
	kind, err := marketplace.ParseKind(chi.URLParam(r, "marketplace"))
	if err != nil {
		s.jsonError(w, http.StatusNotFound, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	var form marketplace.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid form: %v", err))
		return
	}

	ctx := r.Context()
	if err := s.forms.Save(ctx, kind, form); err != nil {
		s.logger.Error().Err(err).Str("key", formstate.Key(kind)).Msg("Failed to save form state")
		s.jsonError(w, http.StatusInternalServerError, "failed to save form state")
		return
	}

	s.jsonResponse(w, http.StatusOK, StateResponse{Marketplace: kind, Fields: marketplace.Filter(kind, form)})
}

func (s *Server) handleSharedState(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	var req SharedStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	if !isShared(req.Field) {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("field %q is not shared", req.Field))
		return
	}

	forms, err := formstate.ApplyShared(r.Context(), s.forms, req.Field, req.Value)
	if err != nil {
		s.logger.Error().Err(err).Str("field", req.Field).Msg("Failed to apply shared field")
		s.jsonError(w, http.StatusInternalServerError, "failed to save form state")
		return
	}

	resp := make([]StateResponse, 0, len(forms))
	for _, k := range marketplace.Kinds() {
		resp = append(resp, StateResponse{Marketplace: k, Fields: forms[k]})
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func isShared(field string) bool {
	for _, f := range marketplace.SharedFields() {
		if f == field {
			return true
		}
	}
	return false
}
