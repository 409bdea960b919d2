// README: End-to-end router tests over in-memory stores.
package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	httptransport "ridedispatch/internal/http"
	"ridedispatch/internal/infra"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/location"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/modules/route"
	"ridedispatch/internal/storage/memory"
	"ridedispatch/internal/types"
)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// stubTokenVerifier treats the bearer token as a key into known callers.
type stubTokenVerifier struct {
	tokens map[string]*infra.FirebaseToken
}

func (s stubTokenVerifier) VerifyIDToken(_ context.Context, raw string) (*infra.FirebaseToken, error) {
	if t, ok := s.tokens[raw]; ok {
		return t, nil
	}
	return nil, errors.New("unknown token")
}

var verifier = stubTokenVerifier{tokens: map[string]*infra.FirebaseToken{
	"passenger": {UID: "p1", Email: "p1@example.com", Claims: map[string]interface{}{}},
	"stranger":  {UID: "p9", Email: "p9@example.com", Claims: map[string]interface{}{}},
	"driver":    {UID: "d1", Email: "d1@example.com", Claims: map[string]interface{}{"role": "driver"}},
}}

type fixedRoutes struct{}

func (fixedRoutes) Resolve(_ context.Context, stops []route.Stop) (*route.Route, error) {
	if len(stops) < 2 {
		return nil, route.ErrInvalidStops
	}
	return &route.Route{ID: "r1", Stops: stops, DistanceKm: 10, DurationSeconds: 1200, PathEncoding: "p"}, nil
}

func buildTestRouter(t *testing.T, withDriver bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a := memory.New()
	clock := types.FixedClock{T: now}
	log := logging.Discard()

	if _, err := a.Prices().Save(context.Background(), pricing.PriceList{
		BasePrice: map[driver.VehicleType]int64{driver.VehicleStandard: 200},
		PerKm:     50,
		Currency:  "TWD",
	}); err != nil {
		t.Fatal(err)
	}
	if withDriver {
		since := now.Add(-time.Hour)
		a.PutDriver(driver.Driver{
			ID:      "d1",
			Email:   "d1@example.com",
			Vehicle: driver.Vehicle{Type: driver.VehicleStandard, Seats: 4, Location: types.Point{Lat: 25.03, Lng: 121.56}},
			Today:   &driver.DailyLog{Date: types.DayOf(now, time.UTC), IsActive: true, LastActivatedAt: &since},
		})
	}

	cfg := matching.DefaultConfig()
	matcher := matching.NewService(matching.NewAvailability(a.Drivers(), a.Rides(), clock, time.UTC, cfg.DailyLimitSeconds), clock, cfg, log)
	pricingSvc := pricing.NewService(a.Prices())
	rides := ride.NewService(a.Rides(), matcher, fixedRoutes{}, pricingSvc, nopNotifier{}, clock, ride.DefaultPolicy(), log)

	srv := httptransport.NewServer(httptransport.ServerDeps{
		Rides:    rides,
		Drivers:  driver.NewService(a.Drivers(), clock, time.UTC, cfg.DailyLimitSeconds, log),
		Location: location.NewService(a.Drivers(), location.NewMemoryIndex()),
		Pricing:  pricingSvc,
		Verifier: verifier,
		Log:      log,
	}, httptransport.Options{})
	return srv.Routes()
}

type nopNotifier struct{}

func (nopNotifier) Emit(context.Context, ride.Event) error { return nil }

func doRequest(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

var createBody = map[string]any{
	"stops": []map[string]any{
		{"address": "A", "location": map[string]float64{"lat": 25.033, "lng": 121.565}},
		{"address": "B", "location": map[string]float64{"lat": 25.047, "lng": 121.531}},
	},
	"vehicle_type": "standard",
}

func TestHealthIsPublic(t *testing.T) {
	w := doRequest(buildTestRouter(t, false), http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	w := doRequest(buildTestRouter(t, true), http.MethodPost, "/api/rides", "", createBody)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRideLifecycleOverHTTP(t *testing.T) {
	r := buildTestRouter(t, true)

	w := doRequest(r, http.MethodPost, "/api/rides", "passenger", createBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decode(t, w)
	id, _ := created["id"].(string)
	if created["status"] != string(ride.StatusScheduled) || created["driver_id"] != "d1" {
		t.Fatalf("unexpected ride %v", created)
	}
	if price := created["estimated_price"].(map[string]any); price["amount"] != float64(700) {
		t.Fatalf("expected estimate 700, got %v", price)
	}

	if w := doRequest(r, http.MethodGet, "/api/rides/"+id, "stranger", nil); w.Code != http.StatusForbidden {
		t.Fatalf("stranger get: expected 403, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/rides/"+id, "passenger", nil); w.Code != http.StatusOK {
		t.Fatalf("passenger get: expected 200, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/api/drivers/me/rides/"+id+"/start", "passenger", nil); w.Code != http.StatusForbidden {
		t.Fatalf("passenger start: expected 403, got %d", w.Code)
	}

	w = doRequest(r, http.MethodPost, "/api/drivers/me/rides/"+id+"/start", "driver", nil)
	if w.Code != http.StatusOK || decode(t, w)["status"] != string(ride.StatusOngoing) {
		t.Fatalf("start: got %d %s", w.Code, w.Body.String())
	}
	if w := doRequest(r, http.MethodPost, "/api/drivers/me/rides/"+id+"/start", "driver", nil); w.Code != http.StatusConflict {
		t.Fatalf("second start: expected 409, got %d", w.Code)
	}

	w = doRequest(r, http.MethodPost, "/api/drivers/me/rides/"+id+"/complete", "driver", map[string]float64{"distance_km": 12})
	if w.Code != http.StatusOK {
		t.Fatalf("complete: got %d %s", w.Code, w.Body.String())
	}
	if final := decode(t, w)["final_price"].(map[string]any); final["amount"] != float64(800) {
		t.Fatalf("expected final 800, got %v", final)
	}

	w = doRequest(r, http.MethodGet, "/api/rides/"+id+"/reviewable", "passenger", nil)
	if w.Code != http.StatusOK || decode(t, w)["reviewable"] != true {
		t.Fatalf("reviewable: got %d %s", w.Code, w.Body.String())
	}
	review := map[string]any{"driver_rating": 5, "vehicle_rating": 4, "comment": "smooth"}
	if w := doRequest(r, http.MethodPost, "/api/rides/"+id+"/review", "passenger", review); w.Code != http.StatusCreated {
		t.Fatalf("review: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if w := doRequest(r, http.MethodPost, "/api/rides/"+id+"/review", "passenger", review); w.Code != http.StatusConflict {
		t.Fatalf("second review: expected 409, got %d", w.Code)
	}
}

func TestCreateWithoutDriversIsUnavailable(t *testing.T) {
	w := doRequest(buildTestRouter(t, false), http.MethodPost, "/api/rides", "passenger", createBody)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
}

func TestInvalidRideID(t *testing.T) {
	w := doRequest(buildTestRouter(t, true), http.MethodGet, "/api/rides/not-a-uuid", "passenger", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDriverCancelNeedsReason(t *testing.T) {
	r := buildTestRouter(t, true)
	id := decode(t, doRequest(r, http.MethodPost, "/api/rides", "passenger", createBody))["id"].(string)

	if w := doRequest(r, http.MethodPost, "/api/rides/"+id+"/cancel", "driver", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	w := doRequest(r, http.MethodPost, "/api/rides/"+id+"/cancel", "driver", map[string]string{"reason": "flat tyre"})
	if w.Code != http.StatusOK || decode(t, w)["status"] != string(ride.StatusCancelledByDriver) {
		t.Fatalf("cancel: got %d %s", w.Code, w.Body.String())
	}
}

func TestDriverActivityAndLocation(t *testing.T) {
	r := buildTestRouter(t, true)

	w := doRequest(r, http.MethodPut, "/api/drivers/me/activity", "driver", map[string]bool{"active": false})
	if w.Code != http.StatusOK {
		t.Fatalf("activity: got %d %s", w.Code, w.Body.String())
	}
	got := decode(t, w)
	if got["is_active"] != false || got["active_seconds"] != float64(3600) {
		t.Fatalf("unexpected log %v", got)
	}

	if w := doRequest(r, http.MethodPut, "/api/drivers/me/location", "passenger", map[string]float64{"lat": 1, "lng": 1}); w.Code != http.StatusForbidden {
		t.Fatalf("passenger location: expected 403, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPut, "/api/drivers/me/location", "driver", map[string]float64{"lat": 25.04, "lng": 121.55}); w.Code != http.StatusNoContent {
		t.Fatalf("location: expected 204, got %d", w.Code)
	}
	w = doRequest(r, http.MethodGet, "/api/drivers/nearby?lat=25.04&lng=121.55&radius_km=1", "passenger", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"driver_id":"d1"`) {
		t.Fatalf("nearby: got %d %s", w.Code, w.Body.String())
	}
}

func TestDeactivatedDriverLeavesNearby(t *testing.T) {
	r := buildTestRouter(t, true)
	const nearby = "/api/drivers/nearby?lat=25.04&lng=121.55&radius_km=1"

	if w := doRequest(r, http.MethodPut, "/api/drivers/me/location", "driver", map[string]float64{"lat": 25.04, "lng": 121.55}); w.Code != http.StatusNoContent {
		t.Fatalf("location: expected 204, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, nearby, "passenger", nil); !strings.Contains(w.Body.String(), `"driver_id":"d1"`) {
		t.Fatalf("active driver missing from nearby: %s", w.Body.String())
	}
	if w := doRequest(r, http.MethodPut, "/api/drivers/me/activity", "driver", map[string]bool{"active": false}); w.Code != http.StatusOK {
		t.Fatalf("activity: got %d %s", w.Code, w.Body.String())
	}
	w := doRequest(r, http.MethodGet, nearby, "passenger", nil)
	if w.Code != http.StatusOK || strings.Contains(w.Body.String(), `"driver_id":"d1"`) {
		t.Fatalf("off-shift driver still nearby: %d %s", w.Code, w.Body.String())
	}
}

func TestCurrentPrices(t *testing.T) {
	w := doRequest(buildTestRouter(t, false), http.MethodGet, "/api/prices/current", "passenger", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"STANDARD":200`) {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}
