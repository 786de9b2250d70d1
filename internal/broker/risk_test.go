package broker_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/replay/internal/broker"
	"github.com/newthinker/replay/internal/core"
)

func riskyBuy(symbol, qty, risk string) broker.OrderRequest {
	req := marketBuy(symbol, qty)
	req.InitialRisk = dec(risk)
	return req
}

func TestRiskConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		heat    string
		perRisk string
		wantErr bool
	}{
		{"defaults", "0.10", "0.05", false},
		{"disabled", "0", "0", false},
		{"full", "1", "1", false},
		{"negative heat", "-0.1", "0.05", true},
		{"heat above one", "1.5", "0.05", true},
		{"negative campaign", "0.1", "-0.01", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := broker.NewRiskChecker(broker.RiskConfig{
				MaxPortfolioHeat: dec(tt.heat),
				MaxCampaignRisk:  dec(tt.perRisk),
			})
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrConfigInvalid)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRiskChecker_WithinLimits(t *testing.T) {
	rc, err := broker.NewRiskChecker(broker.DefaultRiskConfig())
	require.NoError(t, err)

	result := rc.Check(riskyBuy("AAPL", "100", "200"), dec("100000"), nil)
	assert.True(t, result.Allowed)
	assertDecimal(t, "100", result.Quantity)
	assertDecimal(t, "200", result.InitialRisk)
	assert.Empty(t, result.Reason)
	assert.False(t, result.Reduced(dec("100")))
}

func TestRiskChecker_UnknownRiskPassesThrough(t *testing.T) {
	rc, err := broker.NewRiskChecker(broker.DefaultRiskConfig())
	require.NoError(t, err)

	result := rc.Check(marketBuy("AAPL", "1000000"), dec("1000"), nil)
	assert.True(t, result.Allowed)
	assertDecimal(t, "1000000", result.Quantity)
	assert.True(t, result.InitialRisk.IsZero())
}

func TestRiskChecker_CampaignCap(t *testing.T) {
	rc, err := broker.NewRiskChecker(broker.DefaultRiskConfig())
	require.NoError(t, err)

	// 5% of 10000 allows 500 of risk; 2 per share.
	result := rc.Check(riskyBuy("AAPL", "1000", "2000"), dec("10000"), nil)
	assert.True(t, result.Allowed)
	assertDecimal(t, "250", result.Quantity)
	assertDecimal(t, "500", result.InitialRisk)
	assert.True(t, result.Reduced(dec("1000")))
	assert.Contains(t, result.Reason, "campaign risk limit")
}

func TestRiskChecker_CampaignCapCountsSameSymbolOnly(t *testing.T) {
	rc, err := broker.NewRiskChecker(broker.DefaultRiskConfig())
	require.NoError(t, err)

	open := []broker.Position{
		{Symbol: "AAPL", InitialRisk: dec("400")},
		{Symbol: "MSFT", InitialRisk: dec("400")},
	}
	result := rc.Check(riskyBuy("AAPL", "100", "200"), dec("10000"), open)
	assert.True(t, result.Allowed)
	assertDecimal(t, "50", result.Quantity)
	assertDecimal(t, "100", result.InitialRisk)
	assert.Contains(t, result.Reason, "campaign risk limit")
}

func TestRiskChecker_HeatExhausted(t *testing.T) {
	rc, err := broker.NewRiskChecker(broker.RiskConfig{
		MaxPortfolioHeat: dec("0.10"),
		MaxCampaignRisk:  decimal.Zero,
	})
	require.NoError(t, err)

	open := []broker.Position{
		{Symbol: "MSFT", InitialRisk: dec("600")},
		{Symbol: "TSLA", InitialRisk: dec("400")},
	}
	result := rc.Check(riskyBuy("AAPL", "10", "50"), dec("10000"), open)
	assert.False(t, result.Allowed)
	assert.True(t, result.Quantity.IsZero())
	assert.Contains(t, result.Reason, "portfolio heat limit")
}

func TestRiskChecker_DisabledLimits(t *testing.T) {
	rc, err := broker.NewRiskChecker(broker.RiskConfig{})
	require.NoError(t, err)

	result := rc.Check(riskyBuy("AAPL", "1000", "100000"), dec("10000"), nil)
	assert.True(t, result.Allowed)
	assertDecimal(t, "1000", result.Quantity)
}
