package broker

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/newthinker/replay/internal/core"
)

// RiskConfig defines risk management parameters as fractions of portfolio
// value. A zero limit disables that check.
type RiskConfig struct {
	// MaxPortfolioHeat caps the total initial risk of all open positions.
	MaxPortfolioHeat decimal.Decimal
	// MaxCampaignRisk caps the initial risk committed to a single symbol's campaign.
	MaxCampaignRisk decimal.Decimal
}

// DefaultRiskConfig returns a RiskConfig with sensible default values.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxPortfolioHeat: decimal.RequireFromString("0.10"),
		MaxCampaignRisk:  decimal.RequireFromString("0.05"),
	}
}

// Validate checks that both limits are fractions in [0, 1].
func (c RiskConfig) Validate() error {
	one := decimal.NewFromInt(1)
	if c.MaxPortfolioHeat.IsNegative() || c.MaxPortfolioHeat.GreaterThan(one) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_portfolio_heat must be within [0, 1], got %s", c.MaxPortfolioHeat))
	}
	if c.MaxCampaignRisk.IsNegative() || c.MaxCampaignRisk.GreaterThan(one) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_campaign_risk must be within [0, 1], got %s", c.MaxCampaignRisk))
	}
	return nil
}

// RiskCheckResult represents the outcome of a risk check.
type RiskCheckResult struct {
	// Allowed indicates whether the order is permitted.
	Allowed bool
	// Quantity is the requested quantity, reduced to fit the limits.
	Quantity decimal.Decimal
	// InitialRisk is the risk of the allowed quantity.
	InitialRisk decimal.Decimal
	// Reason explains a rejection or a reduced quantity.
	Reason string
}

// RiskChecker validates entry orders against heat and campaign-risk limits.
type RiskChecker struct {
	config RiskConfig
}

// NewRiskChecker creates a new RiskChecker with the given configuration.
func NewRiskChecker(config RiskConfig) (*RiskChecker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &RiskChecker{config: config}, nil
}

// Config returns the configured limits.
func (r *RiskChecker) Config() RiskConfig {
	return r.config
}

// Check sizes an entry request against the remaining risk budget. Requests
// without initial risk are allowed unchanged since their risk is unknown.
func (r *RiskChecker) Check(req OrderRequest, equity decimal.Decimal, positions []Position) RiskCheckResult {
	if !req.InitialRisk.IsPositive() || !req.Quantity.IsPositive() {
		return RiskCheckResult{Allowed: true, Quantity: req.Quantity, InitialRisk: req.InitialRisk}
	}

	var openRisk, symbolRisk decimal.Decimal
	for _, pos := range positions {
		openRisk = openRisk.Add(pos.InitialRisk)
		if pos.Symbol == req.Symbol {
			symbolRisk = symbolRisk.Add(pos.InitialRisk)
		}
	}

	budget := req.InitialRisk
	reason := ""
	if r.config.MaxPortfolioHeat.IsPositive() {
		heat := equity.Mul(r.config.MaxPortfolioHeat).Sub(openRisk)
		if heat.LessThan(budget) {
			budget = heat
			reason = fmt.Sprintf("portfolio heat limit reached: open risk %s of %s allowed", openRisk, equity.Mul(r.config.MaxPortfolioHeat))
		}
	}
	if r.config.MaxCampaignRisk.IsPositive() {
		campaign := equity.Mul(r.config.MaxCampaignRisk).Sub(symbolRisk)
		if campaign.LessThan(budget) {
			budget = campaign
			reason = fmt.Sprintf("campaign risk limit reached for %s: open risk %s of %s allowed", req.Symbol, symbolRisk, equity.Mul(r.config.MaxCampaignRisk))
		}
	}

	riskPerUnit := req.InitialRisk.Div(req.Quantity)
	qty := req.Quantity
	if budget.LessThan(req.InitialRisk) {
		if !budget.IsPositive() {
			return RiskCheckResult{Allowed: false, Quantity: decimal.Zero, Reason: reason}
		}
		qty = budget.Div(riskPerUnit).Floor()
	}
	if !qty.IsPositive() {
		return RiskCheckResult{Allowed: false, Quantity: decimal.Zero, Reason: reason}
	}
	result := RiskCheckResult{
		Allowed:     true,
		Quantity:    qty,
		InitialRisk: req.InitialRisk,
	}
	if !qty.Equal(req.Quantity) {
		result.InitialRisk = riskPerUnit.Mul(qty)
		result.Reason = reason
	}
	return result
}

// Reduced reports whether the check allowed less than the requested quantity.
func (r RiskCheckResult) Reduced(requested decimal.Decimal) bool {
	return r.Allowed && r.Quantity.LessThan(requested)
}
