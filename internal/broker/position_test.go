package broker_test

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/replay/internal/broker"
	"github.com/newthinker/replay/internal/core"
)

var fillSeq int

func filled(symbol string, side broker.OrderSide, qty, quote, commission, slippage string, day int) *broker.Order {
	fillSeq++
	at := day0.AddDate(0, 0, day)
	return &broker.Order{
		ID:         fmt.Sprintf("order-%d", fillSeq),
		Symbol:     symbol,
		Side:       side,
		Type:       broker.OrderTypeMarket,
		Quantity:   dec(qty),
		Status:     broker.OrderStatusFilled,
		CreatedAt:  at.AddDate(0, 0, -1),
		ResolvedAt: at,
		QuotePrice: dec(quote),
		FillPrice:  dec(quote),
		Commission: dec(commission),
		Slippage:   dec(slippage),
	}
}

func newManager(t *testing.T, cash string) *broker.PositionManager {
	t.Helper()
	pm, err := broker.NewPositionManager(dec(cash))
	require.NoError(t, err)
	return pm
}

func TestNewPositionManager_InvalidCapital(t *testing.T) {
	_, err := broker.NewPositionManager(decimal.Zero)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestPositionManager_LongRoundTrip(t *testing.T) {
	pm := newManager(t, "10000")

	entry := filled("AAPL", broker.OrderSideBuy, "10", "100", "1", "1", 1)
	entry.InitialRisk = dec("50")
	entry.Tag = "SPRING"
	require.NoError(t, pm.OpenPosition(entry))
	assertDecimal(t, "8998", pm.Cash())

	pos, ok := pm.Position("AAPL")
	require.True(t, ok)
	assertDecimal(t, "100", pos.EntryPrice)
	assertDecimal(t, "10", pos.Quantity)

	trade, err := pm.ClosePosition(filled("AAPL", broker.OrderSideSell, "10", "110", "1", "1.1", 5))
	require.NoError(t, err)
	require.NotNil(t, trade)

	// (110 - 100) × 10 × 1 - (1 + 1) - |1 + 1.1|
	assertDecimal(t, "95.9", trade.RealizedPnL)
	assertDecimal(t, "2", trade.Commission)
	assertDecimal(t, "2.1", trade.Slippage)
	assertDecimal(t, "1.918", trade.RMultiple)
	assert.Equal(t, "SPRING", trade.Tag)
	assert.Equal(t, day0.AddDate(0, 0, 1), trade.EntryTime)
	assert.Equal(t, day0.AddDate(0, 0, 5), trade.ExitTime)
	assert.Equal(t, day0, trade.EntrySignalAt)

	formula := trade.ExitPrice.Sub(trade.EntryPrice).Mul(trade.Quantity).Sub(trade.Commission).Sub(trade.Slippage.Abs())
	assert.True(t, formula.Equal(trade.RealizedPnL))

	// Cash moved by exactly the realized pnl.
	assertDecimal(t, "10095.9", pm.Cash())
	_, ok = pm.Position("AAPL")
	assert.False(t, ok)
	assert.Len(t, pm.Trades(), 1)
}

func TestPositionManager_WeightedAverageEntry(t *testing.T) {
	pm := newManager(t, "100000")
	require.NoError(t, pm.OpenPosition(filled("AAPL", broker.OrderSideBuy, "100", "100", "0", "0", 1)))
	require.NoError(t, pm.OpenPosition(filled("AAPL", broker.OrderSideBuy, "300", "120", "0", "0", 2)))

	pos, ok := pm.Position("AAPL")
	require.True(t, ok)
	assertDecimal(t, "400", pos.Quantity)
	assertDecimal(t, "115", pos.EntryPrice)
	assert.Equal(t, day0.AddDate(0, 0, 1), pos.OpenedAt)
}

func TestPositionManager_PyramidedPnLMatchesCash(t *testing.T) {
	tests := []struct {
		name   string
		closes []string
	}{
		{name: "single exit", closes: []string{"3"}},
		{name: "split exits", closes: []string{"1", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := newManager(t, "1000")
			start := pm.Cash()
			for day, quote := range []string{"10", "10", "11"} {
				require.NoError(t, pm.OpenPosition(filled("AAPL", broker.OrderSideBuy, "1", quote, "0", "0", day+1)))
			}
			pos, ok := pm.Position("AAPL")
			require.True(t, ok)
			assertDecimal(t, "10.3333333333333333", pos.EntryPrice)
			assertDecimal(t, "2", pos.UnrealizedPnL)

			var trade *broker.Trade
			for i, qty := range tt.closes {
				var err error
				trade, err = pm.ClosePosition(filled("AAPL", broker.OrderSideSell, qty, "12", "0", "0", 10+i))
				require.NoError(t, err)
			}
			require.NotNil(t, trade)

			delta := pm.Cash().Sub(start)
			assertDecimal(t, "5", delta)
			assert.True(t, trade.RealizedPnL.Equal(delta), "realized %s, cash delta %s", trade.RealizedPnL, delta)
			assertDecimal(t, "3", trade.Quantity)
		})
	}
}

func TestPositionManager_InsufficientCash(t *testing.T) {
	pm := newManager(t, "1000")
	err := pm.OpenPosition(filled("AAPL", broker.OrderSideBuy, "10", "100", "1", "0", 1))

	assert.ErrorIs(t, err, core.ErrInsufficientCash)
	assertDecimal(t, "1000", pm.Cash())
	assert.Empty(t, pm.Positions())
}

func TestPositionManager_RejectsUnfilledOrder(t *testing.T) {
	pm := newManager(t, "1000")
	order := filled("AAPL", broker.OrderSideBuy, "1", "100", "0", "0", 1)
	order.Status = broker.OrderStatusRejected

	assert.ErrorIs(t, pm.OpenPosition(order), core.ErrOrderRejected)
}

func TestPositionManager_CloseWithoutPosition(t *testing.T) {
	pm := newManager(t, "1000")
	_, err := pm.ClosePosition(filled("AAPL", broker.OrderSideSell, "1", "100", "0", "0", 1))
	assert.ErrorIs(t, err, core.ErrPositionNotFound)
}

func TestPositionManager_CloseMoreThanHeld(t *testing.T) {
	pm := newManager(t, "10000")
	require.NoError(t, pm.OpenPosition(filled("AAPL", broker.OrderSideBuy, "10", "100", "0", "0", 1)))

	_, err := pm.ClosePosition(filled("AAPL", broker.OrderSideSell, "11", "100", "0", "0", 2))
	assert.ErrorIs(t, err, core.ErrOrderRejected)
}

func TestPositionManager_PartialThenFullClose(t *testing.T) {
	pm := newManager(t, "10000")
	entry := filled("AAPL", broker.OrderSideBuy, "10", "100", "2", "0", 1)
	entry.InitialRisk = dec("100")
	require.NoError(t, pm.OpenPosition(entry))

	trade, err := pm.ClosePosition(filled("AAPL", broker.OrderSideSell, "4", "110", "0", "0", 2))
	require.NoError(t, err)
	assert.Nil(t, trade)

	pos, ok := pm.Position("AAPL")
	require.True(t, ok)
	assertDecimal(t, "6", pos.Quantity)
	assertDecimal(t, "1.2", pos.Commission)
	assertDecimal(t, "60", pos.InitialRisk)
	assertDecimal(t, "39.2", pos.RealizedPnL())

	trade, err = pm.ClosePosition(filled("AAPL", broker.OrderSideSell, "6", "120", "0", "0", 3))
	require.NoError(t, err)
	require.NotNil(t, trade)

	// 4 × 10 + 6 × 20 - 2 commission
	assertDecimal(t, "158", trade.RealizedPnL)
	assertDecimal(t, "10", trade.Quantity)
	assertDecimal(t, "116", trade.ExitPrice)
	assertDecimal(t, "1.58", trade.RMultiple)
	assertDecimal(t, "10158", pm.Cash())
}

func TestPositionManager_ShortRoundTrip(t *testing.T) {
	pm := newManager(t, "10000")
	require.NoError(t, pm.OpenPosition(filled("TSLA", broker.OrderSideSell, "10", "200", "1", "0", 1)))
	assertDecimal(t, "11999", pm.Cash())

	pm.MarkToMarket(bar("TSLA", 2, "180", "195", "190"))
	pos, _ := pm.Position("TSLA")
	assertDecimal(t, "100", pos.UnrealizedPnL)
	assertDecimal(t, "10099", pm.PortfolioValue())

	trade, err := pm.ClosePosition(filled("TSLA", broker.OrderSideBuy, "10", "180", "1", "0", 3))
	require.NoError(t, err)
	require.NotNil(t, trade)
	assertDecimal(t, "198", trade.RealizedPnL)
	assertDecimal(t, "10198", pm.Cash())
}

func TestPositionManager_PortfolioIdentity(t *testing.T) {
	pm := newManager(t, "50000")
	require.NoError(t, pm.OpenPosition(filled("AAPL", broker.OrderSideBuy, "100", "150", "1", "1.5", 1)))

	b := bar("AAPL", 2, "150", "160", "157.25")
	assertDecimal(t, "34997.5", pm.Cash())
	assertDecimal(t, "50722.5", pm.PortfolioValueAt(b))

	unrealized := pm.MarkToMarket(b)
	assertDecimal(t, "725", unrealized)

	want := pm.Cash().Add(dec("100").Mul(b.Close))
	assert.True(t, want.Equal(pm.PortfolioValue()))
	assert.True(t, want.Equal(pm.PortfolioValueAt(b)))
	assertDecimal(t, "15725", pm.PositionsValue())
}

func TestPositionManager_OpenRisk(t *testing.T) {
	pm := newManager(t, "100000")
	a := filled("AAPL", broker.OrderSideBuy, "10", "100", "0", "0", 1)
	a.InitialRisk = dec("50")
	m := filled("MSFT", broker.OrderSideBuy, "10", "300", "0", "0", 1)
	m.InitialRisk = dec("150")
	require.NoError(t, pm.OpenPosition(a))
	require.NoError(t, pm.OpenPosition(m))

	assertDecimal(t, "200", pm.OpenRisk())
	positions := pm.Positions()
	require.Len(t, positions, 2)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.Equal(t, "MSFT", positions[1].Symbol)
}

func TestRMultiple_ZeroRisk(t *testing.T) {
	assert.True(t, broker.RMultiple(dec("100"), decimal.Zero).IsZero())
	assertDecimal(t, "-1", broker.RMultiple(dec("-50"), dec("50")))
}
