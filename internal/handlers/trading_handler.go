package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"trading-engine/internal/engine"
	"trading-engine/internal/models"
)

// TradingHandler exposes the demat account surface: buy/sell settlement,
// holdings, order history, and funding.
type TradingHandler struct {
	ledger     *engine.Ledger
	settlement *engine.Settlement
}

func NewTradingHandler(ledger *engine.Ledger, settlement *engine.Settlement) *TradingHandler {
	return &TradingHandler{ledger: ledger, settlement: settlement}
}

type tradeRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required"`
}

// Buy fills a market buy at the current registry price.
func (h *TradingHandler) Buy(c *gin.Context) {
	h.execute(c, models.OrderSideBuy)
}

// Sell fills a market sell at the current registry price.
func (h *TradingHandler) Sell(c *gin.Context) {
	h.execute(c, models.OrderSideSell)
}

func (h *TradingHandler) execute(c *gin.Context, side models.OrderSide) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	order, valuation, err := h.settlement.Execute(strings.ToUpper(req.Symbol), side, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	// The response carries the authoritative post-settlement state, so the
	// client does not re-fetch holdings and race the next tick.
	c.JSON(http.StatusOK, gin.H{
		"order":        order,
		"dematAccount": valuation,
	})
}

// GetAccount returns the live account valuation.
func (h *TradingHandler) GetAccount(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.Valuation())
}

// GetHoldings returns every position plus the account summary.
func (h *TradingHandler) GetHoldings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"holdings": h.ledger.Holdings(),
		"summary":  h.ledger.Valuation(),
	})
}

// GetOrders returns the in-memory order history, newest first.
func (h *TradingHandler) GetOrders(c *gin.Context) {
	c.JSON(http.StatusOK, h.settlement.Orders())
}

type addFundsRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// AddFunds credits cash to the account.
func (h *TradingHandler) AddFunds(c *gin.Context) {
	var req addFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	balance, err := h.ledger.AddFunds(req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	valuation := h.ledger.Valuation()
	c.JSON(http.StatusOK, gin.H{
		"cashBalance":    balance,
		"portfolioValue": valuation.PortfolioValue,
	})
}
