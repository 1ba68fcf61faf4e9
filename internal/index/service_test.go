package index_test

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

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/atmx/vix-engine/internal/contract"
	"github.com/atmx/vix-engine/internal/engine"
	"github.com/atmx/vix-engine/internal/index"
	"github.com/atmx/vix-engine/internal/model"
	"github.com/atmx/vix-engine/internal/rates"
	"github.com/atmx/vix-engine/internal/store"
	"github.com/atmx/vix-engine/internal/vix"
	"github.com/atmx/vix-engine/internal/window"
)

var day0 = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a test Service with in-memory store and chi router.
// Pass nil for hub if the WebSocket feed is not needed.
func newTestEnv(t *testing.T, hub *index.WSHub) (*store.MemoryStore, chi.Router) {
	t.Helper()
	var pub engine.Publisher
	if hub != nil {
		pub = hub
	}
	ms := store.NewMemoryStore()
	calc := vix.NewCalculator(rates.NewFlat(decimal.Zero))
	eng := engine.New(calc, ms, window.NewRegistry(252), 365, pub)
	svc := index.NewService(eng, ms)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}
		svc.Routes(r)
	})
	return ms, r
}

// ladder returns quotes for one expiry around 100. The far expiry is sent
// as OCC symbols, the near one as explicit fields.
func ladder(t *testing.T, expiry time.Time, asSymbols bool) []index.QuoteRequest {
	t.Helper()
	mids := []float64{3.0, 2.2, 1.5, 1.0, 0.6, 0.3}
	var out []index.QuoteRequest
	add := func(strike float64, right model.Right, mid float64) {
		q := index.QuoteRequest{Mid: d(mid)}
		if asSymbols {
			sym, err := contract.FormatSymbol("SPX", model.ContractKey{Expiry: expiry, Strike: d(strike), Right: right})
			if err != nil {
				t.Fatalf("format symbol: %v", err)
			}
			q.Symbol = sym
		} else {
			q.Expiry = expiry.Format("2006-01-02")
			q.Strike = d(strike)
			q.Right = string(right)
		}
		out = append(out, q)
	}
	for i, m := range mids {
		if i == 0 {
			add(100, model.Call, m)
			add(100, model.Put, m)
			continue
		}
		lo, hi := 100-2*float64(i), 100+2*float64(i)
		add(lo, model.Put, m)
		add(lo, model.Call, m+(100-lo))
		add(hi, model.Call, m)
		add(hi, model.Put, m+(hi-100))
	}
	return out
}

func snapshot(t *testing.T, underlying string, date time.Time, iv float64) index.SnapshotRequest {
	t.Helper()
	atm := d(iv)
	return index.SnapshotRequest{
		Underlying:      underlying,
		Date:            date.Format("2006-01-02"),
		UnderlyingPrice: d(100),
		ATMIV:           &atm,
		Quotes: append(ladder(t, date.AddDate(0, 0, 25), false),
			ladder(t, date.AddDate(0, 0, 34), true)...),
	}
}

func post(t *testing.T, router chi.Router, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(router chi.Router, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

// --- Observation submission ---

func TestSubmitObservation(t *testing.T) {
	ms, router := newTestEnv(t, nil)

	w := post(t, router, "/api/v1/observations", snapshot(t, "spx", day0, 0.18))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var obs model.Observation
	if err := json.NewDecoder(w.Body).Decode(&obs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obs.Underlying != "SPX" {
		t.Errorf("expected upper-cased underlying, got %s", obs.Underlying)
	}
	if obs.VIX == nil || !obs.VIX.IsPositive() {
		t.Errorf("expected a positive index, got %v", obs.VIX)
	}
	if _, err := ms.GetObservation(context.Background(), "SPX", day0); err != nil {
		t.Errorf("expected observation to be stored: %v", err)
	}
}

func TestSubmitObservation_MissingIndexIsNull(t *testing.T) {
	_, router := newTestEnv(t, nil)

	req := snapshot(t, "SPX", day0, 0.18)
	req.Quotes = ladder(t, day0.AddDate(0, 0, 60), false)

	w := post(t, router, "/api/v1/observations", req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var raw map[string]any
	json.NewDecoder(w.Body).Decode(&raw)
	if v, ok := raw["vix"]; !ok || v != nil {
		t.Errorf("expected explicit null vix, got %v", raw["vix"])
	}
	if raw["reason"] != "no_expiry_bracket" {
		t.Errorf("expected reason no_expiry_bracket, got %v", raw["reason"])
	}
}

func TestSubmitObservation_OutOfOrder(t *testing.T) {
	_, router := newTestEnv(t, nil)

	if w := post(t, router, "/api/v1/observations", snapshot(t, "SPX", day0.AddDate(0, 0, 1), 0.2)); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w := post(t, router, "/api/v1/observations", snapshot(t, "SPX", day0, 0.2))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSubmitObservation_BadRequests(t *testing.T) {
	_, router := newTestEnv(t, nil)

	tests := []struct {
		name   string
		mutate func(*index.SnapshotRequest)
	}{
		{"missing underlying", func(r *index.SnapshotRequest) { r.Underlying = " " }},
		{"bad date", func(r *index.SnapshotRequest) { r.Date = "02/01/2025" }},
		{"zero price", func(r *index.SnapshotRequest) { r.UnderlyingPrice = decimal.Zero }},
		{"bad symbol", func(r *index.SnapshotRequest) { r.Quotes[0] = index.QuoteRequest{Symbol: "NOPE", Mid: d(1)} }},
		{"foreign root", func(r *index.SnapshotRequest) {
			r.Quotes[0] = index.QuoteRequest{Symbol: "QQQ250131C00500000", Mid: d(1)}
		}},
		{"bad right", func(r *index.SnapshotRequest) { r.Quotes[0].Right = "X" }},
		{"negative mid", func(r *index.SnapshotRequest) { r.Quotes[0].Mid = d(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := snapshot(t, "SPX", day0, 0.2)
			tt.mutate(&req)
			w := post(t, router, "/api/v1/observations", req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/observations", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", w.Code)
	}
}

// --- Stateless computation ---

func TestComputeIndex(t *testing.T) {
	ms, router := newTestEnv(t, nil)

	w := post(t, router, "/api/v1/vix", snapshot(t, "SPX", day0, 0.2))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res model.IndexResult
	json.NewDecoder(w.Body).Decode(&res)
	if !res.Value.IsPositive() {
		t.Errorf("expected positive index, got %s", res.Value)
	}
	if res.Near.StrikeCount != 11 || res.Far.StrikeCount != 11 {
		t.Errorf("expected 11 strikes per leg, got %d/%d", res.Near.StrikeCount, res.Far.StrikeCount)
	}

	if us, _ := ms.ListUnderlyings(context.Background()); len(us) != 0 {
		t.Error("POST /vix must not persist anything")
	}
}

func TestComputeIndex_SoftFailure(t *testing.T) {
	_, router := newTestEnv(t, nil)
	req := snapshot(t, "SPX", day0, 0.2)
	req.Quotes = req.Quotes[:4]

	w := post(t, router, "/api/v1/vix", req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp index.IndexResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.VIX != nil || resp.Reason != "no_expiry_bracket" {
		t.Errorf("unexpected response %+v", resp)
	}
}

// --- Queries ---

func TestQueries(t *testing.T) {
	_, router := newTestEnv(t, nil)
	for i, u := range []string{"SPX", "SPX", "NDX"} {
		date := day0.AddDate(0, 0, i)
		if w := post(t, router, "/api/v1/observations", snapshot(t, u, date, 0.2+0.01*float64(i))); w.Code != http.StatusOK {
			t.Fatalf("seed %d: %d %s", i, w.Code, w.Body.String())
		}
	}

	w := get(router, "/api/v1/underlyings")
	var us []string
	json.NewDecoder(w.Body).Decode(&us)
	if len(us) != 2 || us[0] != "NDX" || us[1] != "SPX" {
		t.Errorf("expected [NDX SPX], got %v", us)
	}

	w = get(router, "/api/v1/underlyings/spx/latest")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var latest model.Observation
	json.NewDecoder(w.Body).Decode(&latest)
	if !latest.Date.Equal(day0.AddDate(0, 0, 1)) {
		t.Errorf("expected latest on day 1, got %s", latest.Date)
	}

	w = get(router, "/api/v1/underlyings/SPX/history?from=2025-01-02&to=2025-01-03")
	var history []model.Observation
	json.NewDecoder(w.Body).Decode(&history)
	if len(history) != 2 {
		t.Fatalf("expected inclusive range of 2, got %d", len(history))
	}
	if !history[0].Date.Before(history[1].Date) {
		t.Error("expected ascending history")
	}

	w = get(router, "/api/v1/underlyings/SPX/history?from=2025-01-03&to=2025-01-03")
	history = nil
	json.NewDecoder(w.Body).Decode(&history)
	if len(history) != 1 {
		t.Errorf("expected 1 observation, got %d", len(history))
	}
}

func TestQueries_Errors(t *testing.T) {
	_, router := newTestEnv(t, nil)

	if w := get(router, "/api/v1/underlyings/XYZ/latest"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	for _, q := range []string{"from=bad", "to=2025-13-01", "from=2025-02-01&to=2025-01-01"} {
		if w := get(router, "/api/v1/underlyings/SPX/history?"+q); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}

	w := get(router, "/api/v1/underlyings")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %s", w.Body.String())
	}
	w = get(router, "/api/v1/underlyings/SPX/history?from=2025-01-01&to=2025-01-31")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %s", w.Body.String())
	}
}

// --- WebSocket feed ---

func TestWebSocketFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := index.NewWSHub()
	go hub.Run(ctx)

	_, router := newTestEnv(t, hub)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if w := post(t, router, "/api/v1/observations", snapshot(t, "SPX", day0, 0.2)); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg index.WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "observation" || msg.Observation == nil || msg.Observation.Underlying != "SPX" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestSnapshotRequest_OCCRoots(t *testing.T) {
	req := index.SnapshotRequest{
		Underlying:      "spx",
		Date:            "2025-01-02",
		UnderlyingPrice: d(5900),
		Quotes:          []index.QuoteRequest{{Symbol: "SPXW250131C05900000", Mid: d(40)}},
	}
	in, err := req.Input()
	if err != nil {
		t.Fatalf("weekly root rejected: %v", err)
	}
	if got := in.Snapshot.Quotes[0].Key.Strike; !got.Equal(d(5900)) {
		t.Errorf("expected strike 5900, got %s", got)
	}

	req.Quotes[0].Symbol = "QQQ250131C00500000"
	if _, err := req.Input(); !errors.Is(err, contract.ErrRootMismatch) {
		t.Errorf("expected ErrRootMismatch, got %v", err)
	}
}
