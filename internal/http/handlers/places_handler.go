// README: Place search handler for picking ride stops.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/modules/route"
	"ridedispatch/internal/types"
)

type PlacesHandler struct {
	places *route.Places
}

func NewPlacesHandler(places *route.Places) *PlacesHandler {
	return &PlacesHandler{places: places}
}

// Search handles GET /api/places?q=...&lat=...&lng=...&limit=...
func (h *PlacesHandler) Search(c *gin.Context) {
	var near *types.Point
	if c.Query("lat") != "" || c.Query("lng") != "" {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			writeError(c, http.StatusBadRequest, "lat and lng must be given together")
			return
		}
		near = &types.Point{Lat: lat, Lng: lng}
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	found, err := h.places.Search(c.Request.Context(), c.Query("q"), near, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]gin.H, 0, len(found))
	for _, p := range found {
		out = append(out, gin.H{
			"name":     p.Name,
			"place_id": p.PlaceID,
			"stop":     fromStops([]route.Stop{p.Stop()})[0],
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"places": out})
}
