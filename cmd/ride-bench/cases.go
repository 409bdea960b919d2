// README: Bench checks: environment, schema, API smoke, concurrent assignment and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// rideID is the ride won by the race check, reused by the lifecycle checks.
	rideID string
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

var benchStops = []map[string]any{
	{"address": "Taipei 101", "location": map[string]float64{"lat": 25.0339, "lng": 121.5645}},
	{"address": "Taipei Main Station", "location": map[string]float64{"lat": 25.0478, "lng": 121.5170}},
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{"Env: Postgres connect", func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: statusFail, Note: "db not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.db.Ping(ctx); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{"Env: Redis connect", func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return Result{Status: statusFail, Note: "redis not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.redis.Ping(ctx).Err(); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{"Migration: apply (optional)", func(ctx context.Context, r *Runner) Result {
			if !r.cfg.ApplyMigration {
				return Result{Status: statusSkip, Note: "apply-migration=false"}
			}
			if r.db == nil {
				return Result{Status: statusFail, Note: "db not configured"}
			}
			sql, err := os.ReadFile(r.cfg.MigrationPath)
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			for _, s := range splitSQL(string(sql)) {
				if _, err := r.db.Exec(ctx, s); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
			}
			return Result{Status: statusPass}
		}},
		{"Migration: tables exist", func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: statusFail, Note: "db not configured"}
			}
			tables, err := extractTables(r.cfg.MigrationPath)
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			for _, t := range tables {
				var exists bool
				err := r.db.QueryRow(ctx,
					"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", t,
				).Scan(&exists)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				if !exists {
					return Result{Status: statusFail, Note: "missing table: " + t}
				}
			}
			return Result{Status: statusPass, Note: fmt.Sprintf("%d tables", len(tables))}
		}},
		{"Seed: bench driver and price list (optional)", func(ctx context.Context, r *Runner) Result {
			if !r.cfg.SeedDriver {
				return Result{Status: statusSkip, Note: "seed=false"}
			}
			if r.db == nil {
				return Result{Status: statusFail, Note: "db not configured"}
			}
			if err := seedBenchData(ctx, r.db, r.cfg.DriverID); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},

		{"API: health", func(ctx context.Context, r *Runner) Result {
			return expect(r.do(ctx, http.MethodGet, base+"/health", "", nil), http.StatusOK)
		}},
		{"API: metrics exposed", func(ctx context.Context, r *Runner) Result {
			return expect(r.do(ctx, http.MethodGet, base+"/metrics", "", nil), http.StatusOK)
		}},
		{"API: missing token -> 401", func(ctx context.Context, r *Runner) Result {
			return expect(r.do(ctx, http.MethodGet, base+"/api/prices/current", "", nil), http.StatusUnauthorized)
		}},
		{"Pricing: current price list", func(ctx context.Context, r *Runner) Result {
			if r.cfg.PassengerToken == "" {
				return Result{Status: statusSkip, Note: "no passenger token"}
			}
			return expect(r.do(ctx, http.MethodGet, base+"/api/prices/current", r.cfg.PassengerToken, nil), http.StatusOK)
		}},
		{"Pricing: estimate", func(ctx context.Context, r *Runner) Result {
			if r.cfg.PassengerToken == "" {
				return Result{Status: statusSkip, Note: "no passenger token"}
			}
			return expect(r.do(ctx, http.MethodPost, base+"/api/rides/estimate", r.cfg.PassengerToken,
				map[string]any{"stops": benchStops, "vehicle_type": "STANDARD"}), http.StatusOK)
		}},
		{"Ride: invalid body -> 400", func(ctx context.Context, r *Runner) Result {
			if r.cfg.PassengerToken == "" {
				return Result{Status: statusSkip, Note: "no passenger token"}
			}
			return expect(r.do(ctx, http.MethodPost, base+"/api/rides", r.cfg.PassengerToken, map[string]any{}), http.StatusBadRequest)
		}},
		{"Driver: go active", func(ctx context.Context, r *Runner) Result {
			if r.cfg.DriverToken == "" {
				return Result{Status: statusSkip, Note: "no driver token"}
			}
			return expect(r.do(ctx, http.MethodPut, base+"/api/drivers/me/activity", r.cfg.DriverToken,
				map[string]bool{"active": true}), http.StatusOK, http.StatusConflict)
		}},
		{"Driver: invalid coords -> 400", func(ctx context.Context, r *Runner) Result {
			if r.cfg.DriverToken == "" {
				return Result{Status: statusSkip, Note: "no driver token"}
			}
			return expect(r.do(ctx, http.MethodPut, base+"/api/drivers/me/location", r.cfg.DriverToken,
				map[string]float64{"lat": 123, "lng": 456}), http.StatusBadRequest)
		}},

		{"Concurrency: one free driver, many requests", concurrentCreate},
		{"Ride: driver starts the won ride", func(ctx context.Context, r *Runner) Result {
			return r.lifecycle(ctx, "start", nil)
		}},
		{"Ride: driver completes the won ride", func(ctx context.Context, r *Runner) Result {
			return r.lifecycle(ctx, "complete", map[string]float64{"distance_km": 5})
		}},

		{"Perf: location update throughput", func(ctx context.Context, r *Runner) Result {
			if r.cfg.DriverToken == "" {
				return Result{Status: statusSkip, Note: "no driver token"}
			}
			return perfLoad(ctx, r, http.MethodPut, base+"/api/drivers/me/location", r.cfg.DriverToken,
				map[string]float64{"lat": 25.0339, "lng": 121.5645})
		}},
		{"Perf: estimate throughput", func(ctx context.Context, r *Runner) Result {
			if r.cfg.PassengerToken == "" {
				return Result{Status: statusSkip, Note: "no passenger token"}
			}
			return perfLoad(ctx, r, http.MethodPost, base+"/api/rides/estimate", r.cfg.PassengerToken,
				map[string]any{"stops": benchStops, "vehicle_type": "STANDARD"})
		}},
	}
}

type response struct {
	status  int
	body    []byte
	latency time.Duration
	err     error
}

func (r *Runner) do(ctx context.Context, method, url, token string, body any) response {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return response{err: err}
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return response{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return response{err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return response{status: resp.StatusCode, body: b, latency: time.Since(start)}
}

func expect(resp response, ok ...int) Result {
	if resp.err != nil {
		return Result{Status: statusFail, Note: resp.err.Error()}
	}
	note := fmt.Sprintf("status=%d", resp.status)
	if contains(ok, resp.status) {
		return Result{Status: statusPass, Latency: resp.latency, Note: note}
	}
	return Result{Status: statusFail, Latency: resp.latency, Note: note + " " + truncate(string(resp.body), 120)}
}

// concurrentCreate fires Concurrency ride requests at once. With a single
// free driver exactly one may be assigned; the rest see 503.
func concurrentCreate(ctx context.Context, r *Runner) Result {
	if r.cfg.PassengerToken == "" {
		return Result{Status: statusSkip, Note: "no passenger token"}
	}
	url := r.cfg.BaseURL + "/api/rides"
	payload := map[string]any{"stops": benchStops, "vehicle_type": "STANDARD"}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     []string
		refused int
		other   = map[int]int{}
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := r.do(ctx, http.MethodPost, url, r.cfg.PassengerToken, payload)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case resp.err != nil:
				other[0]++
			case resp.status == http.StatusCreated:
				var body struct {
					ID string `json:"id"`
				}
				_ = json.Unmarshal(resp.body, &body)
				won = append(won, body.ID)
			case resp.status == http.StatusServiceUnavailable:
				refused++
			default:
				other[resp.status]++
			}
		}()
	}
	wg.Wait()

	note := fmt.Sprintf("created=%d refused=%d other=%v", len(won), refused, other)
	if len(won) != 1 {
		return Result{Status: statusFail, Note: note}
	}
	r.rideID = won[0]
	return Result{Status: statusPass, Note: note}
}

func (r *Runner) lifecycle(ctx context.Context, action string, body any) Result {
	if r.cfg.DriverToken == "" || r.rideID == "" {
		return Result{Status: statusSkip, Note: "needs driver token and a won ride"}
	}
	url := fmt.Sprintf("%s/api/drivers/me/rides/%s/%s", r.cfg.BaseURL, r.rideID, action)
	return expect(r.do(ctx, http.MethodPost, url, r.cfg.DriverToken, body), http.StatusOK)
}

func perfLoad(ctx context.Context, r *Runner, method, url, token string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		count, errCount int64
		mu              sync.Mutex
		wg              sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				resp := r.do(ctx, method, url, token, payload)
				mu.Lock()
				if resp.err != nil || resp.status >= 500 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no requests completed, errors=%d", errCount)}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

// seedBenchData makes driverID the only active STANDARD driver for today,
// frees it from earlier bench rides and makes sure a price list exists.
func seedBenchData(ctx context.Context, db *pgxpool.Pool, driverID string) error {
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO drivers (id, email, name) VALUES ($1, $1 || '@bench.local', 'Bench Driver')
		  ON CONFLICT (id) DO NOTHING`, []any{driverID}},
		{`INSERT INTO vehicles (driver_id, type, plate, seats, lat, lng)
		  VALUES ($1, 'STANDARD', 'BENCH-1', 4, 25.0339, 121.5645)
		  ON CONFLICT (driver_id) DO UPDATE SET type = 'STANDARD', seats = 4`, []any{driverID}},
		{`UPDATE driver_daily_logs SET is_active = FALSE, last_activated_at = NULL
		  WHERE log_date = CURRENT_DATE AND driver_id <> $1`, []any{driverID}},
		{`INSERT INTO driver_daily_logs (driver_id, log_date, is_active, active_seconds, last_activated_at)
		  VALUES ($1, CURRENT_DATE, TRUE, 0, now())
		  ON CONFLICT (driver_id, log_date) DO UPDATE SET is_active = TRUE, active_seconds = 0, last_activated_at = now()`, []any{driverID}},
		{`UPDATE rides SET status = 'CANCELLED_BY_DRIVER', status_version = status_version + 1,
		         cancellation_reason = 'bench reset', end_time = now()
		  WHERE driver_id = $1 AND status IN ('SCHEDULED', 'ONGOING')`, []any{driverID}},
		{`INSERT INTO price_lists (base_prices, per_km, currency)
		  SELECT '{"STANDARD": 100, "LUXURY": 300, "VAN": 200}'::jsonb, 30, 'TWD'
		  WHERE NOT EXISTS (SELECT 1 FROM price_lists)`, nil},
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	for _, s := range stmts {
		if _, err := tx.Exec(ctx, s.sql, s.args...); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return tablesIn(string(b)), nil
}

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func tablesIn(sql string) []string {
	matches := createTableRe.FindAllStringSubmatch(sql, -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables
}

// splitSQL drops comment lines and splits on ';'. Good enough for the
// migration files, which have no procedural bodies.
func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
