package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"trading-engine/internal/engine"
)

// respondError maps engine errors to HTTP statuses. Every engine error is
// recoverable; the message is the human-readable surface for the UI.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, engine.ErrUnknownInstrument):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidSnapshot),
		errors.Is(err, engine.ErrInvalidQuantity),
		errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrUnknownSymbol),
		errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrInsufficientHoldings):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrFeedUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
