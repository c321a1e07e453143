// Package handlers provides the read-only HTTP surface over the decision
// core: dry-run calculation endpoints that report what the engine would
// do on an account's current wallet without submitting any orders.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vvolkov/rebalancer/internal/domain"
	"github.com/vvolkov/rebalancer/internal/modules/allocation"
	"github.com/vvolkov/rebalancer/internal/modules/portfolio"
	"github.com/vvolkov/rebalancer/internal/modules/rebalancing"
)

// AccountSource resolves one configured account's balancing config and a
// fresh snapshot of its wallet/catalog/prices/market-data, so the handler
// can run the engine without mutating anything (no order submission).
type AccountSource interface {
	// Snapshot returns everything Run needs for accountID, or ok=false if
	// accountID is not a configured account.
	Snapshot(accountID string) (cfg domain.BalancingConfig, wallet domain.Wallet, cat domain.Catalog, prices portfolio.PriceSource, md allocation.MarketData, ok bool)
}

// Handler handles read-only rebalancing HTTP requests.
type Handler struct {
	accounts AccountSource
	log      zerolog.Logger
}

// NewHandler creates a rebalancing Handler.
func NewHandler(accounts AccountSource, log zerolog.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		log:      log.With().Str("handler", "rebalancing").Logger(),
	}
}

// Routes mounts this handler's endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/{accountID}/calculate", h.HandleCalculate)
	r.Post("/{accountID}/calculate/target-weights", h.HandleCalculateTargetWeights)
}

// planResponse is the JSON shape returned for a dry-run calculation.
type planResponse struct {
	Positions           []positionPlan         `json:"positions"`
	FinalPercents       domain.DesiredWallet   `json:"final_percents"`
	ModeUsed            domain.DesiredMode     `json:"mode_used"`
	TotalPortfolioValue float64                `json:"total_portfolio_value"`
	Underfunded         bool                   `json:"underfunded"`
	MarginInfo          *rebalancing.MarginInfo `json:"margin_info,omitempty"`
}

type positionPlan struct {
	Ticker      string  `json:"ticker"`
	ToBuyLots   int64   `json:"to_buy_lots"`
	ToBuyNumber float64 `json:"to_buy_number"`
}

func toPlanResponse(result rebalancing.Result) planResponse {
	positions := make([]positionPlan, 0, len(result.Wallet.Positions))
	for _, p := range result.Wallet.Positions {
		if p.ToBuyLots == 0 {
			continue
		}
		positions = append(positions, positionPlan{
			Ticker:      p.Base,
			ToBuyLots:   p.ToBuyLots,
			ToBuyNumber: p.ToBuyNumber,
		})
	}
	return planResponse{
		Positions:           positions,
		FinalPercents:       result.FinalPercents,
		ModeUsed:            result.ModeUsed,
		TotalPortfolioValue: result.TotalPortfolioValue,
		Underfunded:         result.Underfunded,
		MarginInfo:          result.MarginInfo,
	}
}

// HandleCalculate handles GET /api/rebalancing/{accountID}/calculate: runs
// the engine on the account's current live snapshot and returns the plan.
// No orders are submitted — this is purely read-only telemetry.
func (h *Handler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	cfg, wallet, cat, prices, md, ok := h.accounts.Snapshot(accountID)
	if !ok {
		http.Error(w, "unknown account", http.StatusNotFound)
		return
	}

	result := rebalancing.Run(cfg, wallet, cat, prices, md)
	h.writeJSON(w, http.StatusOK, toPlanResponse(result))
}

// calculateTargetWeightsRequest overrides desired_wallet for one dry run,
// without persisting the override to the account's configuration.
type calculateTargetWeightsRequest struct {
	TargetWeights domain.DesiredWallet `json:"target_weights"`
}

// HandleCalculateTargetWeights handles POST
// /api/rebalancing/{accountID}/calculate/target-weights: same as
// HandleCalculate, but forces desired_mode=manual with the posted weights
// instead of the account's configured mode.
func (h *Handler) HandleCalculateTargetWeights(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	cfg, wallet, cat, prices, md, ok := h.accounts.Snapshot(accountID)
	if !ok {
		http.Error(w, "unknown account", http.StatusNotFound)
		return
	}

	var req calculateTargetWeightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.TargetWeights) == 0 {
		http.Error(w, "target_weights is required and must not be empty", http.StatusBadRequest)
		return
	}

	cfg.DesiredMode = domain.ModeManual
	cfg.DesiredWallet = req.TargetWeights

	result := rebalancing.Run(cfg, wallet, cat, prices, md)
	h.writeJSON(w, http.StatusOK, toPlanResponse(result))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}); err != nil {
		h.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}
