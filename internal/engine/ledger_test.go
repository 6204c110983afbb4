package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-engine/internal/engine"
	"trading-engine/internal/models"
)

func newLedger(t *testing.T, cash string) (*engine.Registry, *engine.Ledger) {
	t.Helper()
	reg := engine.NewRegistry()
	return reg, engine.NewLedger(reg, decimal.RequireFromString(cash))
}

func TestLedger_ApplyBuy(t *testing.T) {
	testCases := []struct {
		name        string
		cash        string
		quantity    int64
		price       string
		expectedErr error
	}{
		{name: "exact balance spend", cash: "1000", quantity: 10, price: "100"},
		{name: "insufficient funds", cash: "999", quantity: 10, price: "100", expectedErr: engine.ErrInsufficientFunds},
		{name: "zero quantity", cash: "1000", quantity: 0, price: "100", expectedErr: engine.ErrInvalidQuantity},
		{name: "negative quantity", cash: "1000", quantity: -5, price: "100", expectedErr: engine.ErrInvalidQuantity},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, ledger := newLedger(t, tc.cash)
			err := ledger.ApplyBuy("AAPL", tc.quantity, decimal.RequireFromString(tc.price))

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.True(t, ledger.CashBalance().Equal(decimal.RequireFromString(tc.cash)), "failed buy must not touch cash")
				assert.Empty(t, ledger.Holdings())
				return
			}

			require.NoError(t, err)
			assert.True(t, ledger.CashBalance().IsZero())
			require.Len(t, ledger.Holdings(), 1)
		})
	}
}

func TestLedger_WeightedAverageCost(t *testing.T) {
	_, ledger := newLedger(t, "100000")

	require.NoError(t, ledger.ApplyBuy("AAPL", 10, decimal.NewFromInt(100)))
	require.NoError(t, ledger.ApplyBuy("AAPL", 5, decimal.NewFromInt(130)))

	positions := ledger.Holdings()
	require.Len(t, positions, 1)
	assert.Equal(t, int64(15), positions[0].Quantity)
	// (10*100 + 5*130) / 15 = 110
	assert.True(t, positions[0].AveragePrice.Equal(decimal.NewFromInt(110)),
		"got %s", positions[0].AveragePrice)
}

func TestLedger_SellKeepsAverageCost(t *testing.T) {
	_, ledger := newLedger(t, "1000")
	require.NoError(t, ledger.ApplyBuy("AAPL", 10, decimal.NewFromInt(100)))

	require.NoError(t, ledger.ApplySell("AAPL", 4, decimal.NewFromInt(120)))

	positions := ledger.Holdings()
	require.Len(t, positions, 1)
	assert.Equal(t, int64(6), positions[0].Quantity)
	assert.True(t, positions[0].AveragePrice.Equal(decimal.NewFromInt(100)),
		"partial sale must not move the cost basis of remaining shares")
	// 1000 - 1000 + 4*120
	assert.True(t, ledger.CashBalance().Equal(decimal.NewFromInt(480)))
}

func TestLedger_SellToZeroDestroysPosition(t *testing.T) {
	_, ledger := newLedger(t, "1000")
	require.NoError(t, ledger.ApplyBuy("AAPL", 10, decimal.NewFromInt(100)))

	require.NoError(t, ledger.ApplySell("AAPL", 10, decimal.NewFromInt(100)))
	assert.Empty(t, ledger.Holdings())
}

func TestLedger_Oversell(t *testing.T) {
	_, ledger := newLedger(t, "1000")
	require.NoError(t, ledger.ApplyBuy("AAPL", 5, decimal.NewFromInt(100)))

	err := ledger.ApplySell("AAPL", 6, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, engine.ErrInsufficientHoldings)

	err = ledger.ApplySell("MSFT", 1, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, engine.ErrInsufficientHoldings)

	positions := ledger.Holdings()
	require.Len(t, positions, 1)
	assert.Equal(t, int64(5), positions[0].Quantity, "failed sell must not touch the position")
	assert.True(t, ledger.CashBalance().Equal(decimal.NewFromInt(500)))
}

func TestLedger_AddFunds(t *testing.T) {
	_, ledger := newLedger(t, "100")

	balance, err := ledger.AddFunds(decimal.NewFromInt(400))
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(500)))

	_, err = ledger.AddFunds(decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, engine.ErrInvalidAmount)
	assert.True(t, ledger.CashBalance().Equal(decimal.NewFromInt(500)))
}

func TestLedger_Valuation(t *testing.T) {
	reg, ledger := newLedger(t, "1000")
	require.NoError(t, reg.Upsert(snapshot("AAPL", "100", "100")))

	require.NoError(t, ledger.ApplyBuy("AAPL", 5, decimal.NewFromInt(100)))
	require.NoError(t, reg.ApplyTick("AAPL", models.TickUpdate{Symbol: "AAPL", Price: decPtr("120")}))

	val := ledger.Valuation()
	assert.True(t, val.CashBalance.Equal(decimal.NewFromInt(500)))
	assert.True(t, val.InvestedValue.Equal(decimal.NewFromInt(500)))
	assert.True(t, val.CurrentValue.Equal(decimal.NewFromInt(600)), "5 shares at the live price 120")
	assert.True(t, val.ProfitLoss.Equal(decimal.NewFromInt(100)))
	assert.True(t, val.PortfolioValue.Equal(decimal.NewFromInt(1100)))
}

func TestLedger_ValuationEmptyAccount(t *testing.T) {
	_, ledger := newLedger(t, "250")

	val := ledger.Valuation()
	assert.True(t, val.InvestedValue.IsZero())
	assert.True(t, val.CurrentValue.IsZero())
	assert.True(t, val.ProfitLoss.IsZero())
	assert.True(t, val.PortfolioValue.Equal(decimal.NewFromInt(250)))
}
