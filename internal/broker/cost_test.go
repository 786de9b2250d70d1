package broker_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/replay/internal/broker"
	"github.com/newthinker/replay/internal/core"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestNewSimpleCostModel_Validation(t *testing.T) {
	tests := []struct {
		name     string
		perTrade string
		perShare string
		slippage string
		wantErr  bool
	}{
		{"valid", "1", "0.005", "0.001", false},
		{"zero costs", "0", "0", "0", false},
		{"upper slippage bound", "0", "0", "0.1", false},
		{"negative slippage", "0", "0", "-0.01", true},
		{"slippage above bound", "0", "0", "0.11", true},
		{"negative commission", "-1", "0", "0.001", true},
		{"negative per share", "0", "-0.01", "0.001", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := broker.NewSimpleCostModel(dec(tt.perTrade), dec(tt.perShare), dec(tt.slippage))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, core.ErrConfigInvalid)
				assert.Nil(t, model)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, model)
		})
	}
}

func TestSimpleCostModel_Commission(t *testing.T) {
	model, err := broker.NewSimpleCostModel(dec("1"), dec("0.005"), dec("0"))
	require.NoError(t, err)

	order := &broker.Order{Quantity: dec("200")}
	assertDecimal(t, "2", model.Commission(order, dec("50")))
}

func TestSimpleCostModel_SlippagePct(t *testing.T) {
	model, err := broker.NewSimpleCostModel(dec("0"), dec("0"), dec("0.01"))
	require.NoError(t, err)

	tests := []struct {
		name      string
		qty       string
		avgVolume string
		want      string
	}{
		{"no volume data", "500", "0", "0.01"},
		{"half participation", "500", "1000", "0.015"},
		{"participation capped", "5000", "1000", "0.02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := &broker.Order{Quantity: dec(tt.qty)}
			assertDecimal(t, tt.want, model.SlippagePct(order, core.Bar{}, dec(tt.avgVolume)))
		})
	}
	assertDecimal(t, "0.02", model.MaxSlippagePct())
}

func TestZeroCostModel(t *testing.T) {
	model := broker.NewZeroCostModel()
	order := &broker.Order{Quantity: dec("100")}

	assert.True(t, model.Commission(order, dec("10")).IsZero())
	assert.True(t, model.SlippagePct(order, core.Bar{}, dec("1000")).IsZero())
	assert.True(t, model.MaxSlippagePct().IsZero())
}
