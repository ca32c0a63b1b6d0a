package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/wallet-insight/internal/errors"
	"github.com/wallet-insight/internal/logging"
)

// maxPriceSymbols caps one /api/prices request
const maxPriceSymbols = 30

// PricesResponse maps upper-case symbols to USD prices. Unavailable is set
// when the lookup failed and every price is reported as 0.
type PricesResponse struct {
	Prices      map[string]float64 `json:"prices"`
	Unavailable bool               `json:"unavailable,omitempty"`
}

// handleGetPrices handles GET /api/prices?symbols=ETH,UNI
func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	symbols := parseSymbols(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		respondServiceError(w, r, errors.NewInvalidParameterError("symbols", "at least one symbol is required"))
		return
	}
	if len(symbols) > maxPriceSymbols {
		respondServiceError(w, r, errors.NewInvalidParameterError("symbols", fmt.Sprintf("at most %d symbols per request", maxPriceSymbols)))
		return
	}

	resp := PricesResponse{Prices: make(map[string]float64, len(symbols))}
	prices, err := s.services.Prices.GetSpotPrices(r.Context(), symbols)
	if err != nil {
		if r.Context().Err() != nil {
			respondServiceError(w, r, r.Context().Err())
			return
		}
		logging.FromContext(r.Context()).WithError(err).Warn("Spot price lookup failed, reporting zeros")
		resp.Unavailable = true
	}
	for _, sym := range symbols {
		resp.Prices[sym] = prices[sym]
	}

	respondJSON(w, http.StatusOK, resp)
}

// parseSymbols splits a comma separated list into unique upper-case symbols
func parseSymbols(raw string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}
