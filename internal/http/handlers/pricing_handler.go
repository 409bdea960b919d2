// README: Price list handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/modules/pricing"
)

type PricingHandler struct {
	pricing *pricing.Service
}

func NewPricingHandler(svc *pricing.Service) *PricingHandler {
	return &PricingHandler{pricing: svc}
}

func (h *PricingHandler) Current(c *gin.Context) {
	pl, err := h.pricing.Current(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	base := make(map[string]int64, len(pl.BasePrice))
	for vt, amount := range pl.BasePrice {
		base[string(vt)] = amount
	}
	writeJSON(c, http.StatusOK, gin.H{
		"id":         pl.ID,
		"base_price": base,
		"per_km":     pl.PerKm,
		"currency":   pl.Currency,
		"created_at": pl.CreatedAt,
	})
}
