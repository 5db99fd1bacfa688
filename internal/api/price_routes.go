package api

import (
	"net/http"

	"github.com/kjannette/cryptovest-backend/internal/alerts"
	"github.com/shopspring/decimal"
)

type priceJSON struct {
	Coin   string          `json:"coin"`
	USD    decimal.Decimal `json:"usd"`
	Source string          `json:"source"`
	T      int64           `json:"t"`
}

// handlePrices never fails: the provider falls back to recorded or static
// prices when the live feed is down.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	prices := s.Prices.Prices(r.Context())
	out := make([]priceJSON, len(prices))
	for i, p := range prices {
		out[i] = priceJSON{Coin: p.Coin.Upper(), USD: p.USD, Source: p.Source, T: p.RecordedAt.UnixMilli()}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	out := []alerts.Alert{}
	if s.Alerts != nil {
		out = s.Alerts.Recent()
	}
	if limit := parseLimit(r, len(out)); limit < len(out) {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWalletAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := s.Wallets.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch wallet addresses")
		return
	}
	writeJSON(w, http.StatusOK, addrs)
}
