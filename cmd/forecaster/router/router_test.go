package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/loadcast/pkg/forecast"
	"github.com/HatiCode/loadcast/pkg/httpx"
	"github.com/HatiCode/loadcast/pkg/storage"
)

type fakeDispatcher struct {
	res   forecast.Result
	err   error
	calls []forecast.Request
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req forecast.Request) (forecast.Result, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return forecast.Result{}, f.err
	}
	if err := req.Validate(); err != nil {
		return forecast.Result{}, err
	}
	return f.res, nil
}

func testMux(t *testing.T, d Dispatcher, store *storage.MemoryStore, mutate func(*Options)) *http.ServeMux {
	t.Helper()
	opts := Options{
		Dispatcher:     d,
		Store:          store,
		Ledger:         store,
		MetricsHandler: promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return SetupRoutes(opts)
}

func do(mux http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestRootEndpoint(t *testing.T) {
	mux := testMux(t, &fakeDispatcher{}, storage.NewMemoryStore(), nil)

	w := do(mux, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Energy Load Forecast API is up!") {
		t.Errorf("body = %s", w.Body.String())
	}

	if w := do(mux, "/unknown"); w.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	mux := testMux(t, &fakeDispatcher{}, storage.NewMemoryStore(), nil)

	w := do(mux, "/healthz")
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestReadyEndpoint(t *testing.T) {
	mux := testMux(t, &fakeDispatcher{}, storage.NewMemoryStore(), func(o *Options) {
		o.ReadyChecks = map[string]func(context.Context) error{
			"model": func(context.Context) error { return forecast.ErrModelUnavailable },
		}
	})

	w := do(mux, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux := testMux(t, &fakeDispatcher{}, storage.NewMemoryStore(), nil)

	if w := do(mux, "/metrics"); w.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", w.Code)
	}
}

func TestPredict_Cached(t *testing.T) {
	points := []forecast.Point{
		{Timestamp: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), Predicted: 50000, Lower: 48000, Upper: 52000},
	}
	d := &fakeDispatcher{res: forecast.Result{Disposition: forecast.Cached, Points: points}}
	mux := testMux(t, d, storage.NewMemoryStore(), nil)

	w := do(mux, "/predict?days=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var got []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0]["ds"] != "2024-06-02" || got[0]["yhat"] != 50000.0 {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestPredict_Accepted(t *testing.T) {
	d := &fakeDispatcher{res: forecast.Result{Disposition: forecast.Accepted, RequestID: "abc-123"}}
	mux := testMux(t, d, storage.NewMemoryStore(), nil)

	w := do(mux, "/predict")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/requests/abc-123" {
		t.Errorf("Location = %q", loc)
	}

	var body AcceptedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "Forecast generation in progress" || body.RequestID != "abc-123" {
		t.Errorf("body = %+v", body)
	}

	if len(d.calls) != 1 || d.calls[0].HorizonDays != forecast.DefaultHorizonDays {
		t.Errorf("default days not applied: %+v", d.calls)
	}
}

func TestPredict_Errors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		err      error
		wantCode int
		wantBody string
	}{
		{"zero days", "/predict?days=0", nil, http.StatusUnprocessableEntity, "days"},
		{"too many days", "/predict?days=366", nil, http.StatusUnprocessableEntity, "days"},
		{"not a number", "/predict?days=week", nil, http.StatusUnprocessableEntity, "integer"},
		{"model not loaded", "/predict?days=7", forecast.ErrModelUnavailable, http.StatusInternalServerError, "Model not loaded"},
		{"queue full", "/predict?days=7", forecast.ErrBusy, http.StatusServiceUnavailable, "queue is full"},
		{"cache outage", "/predict?days=7", &forecast.ConnectivityError{Component: "cache", Err: errors.New("refused")}, http.StatusServiceUnavailable, "unavailable"},
		{"unexpected", "/predict?days=7", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := testMux(t, &fakeDispatcher{err: tt.err}, storage.NewMemoryStore(), nil)

			w := do(mux, tt.target)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want containing %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestGetForecasts(t *testing.T) {
	store := storage.NewMemoryStore()
	mux := testMux(t, &fakeDispatcher{}, store, nil)

	w := do(mux, "/get_forecasts")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("empty store = %d %s", w.Code, w.Body.String())
	}

	points := make([]forecast.Point, 5)
	for i := range points {
		points[i] = forecast.Point{Timestamp: time.Date(2024, 6, 1+i, 0, 0, 0, 0, time.UTC), Predicted: float64(i)}
	}
	if err := store.Append(context.Background(), "req-1", points); err != nil {
		t.Fatal(err)
	}

	w = do(mux, "/get_forecasts?limit=2&offset=1")
	var got []forecast.Point
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Predicted != 1 {
		t.Errorf("page = %+v", got)
	}

	if w := do(mux, "/get_forecasts?limit=-1"); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("negative limit status = %d, want 422", w.Code)
	}
}

func TestGetRequest(t *testing.T) {
	store := storage.NewMemoryStore()
	mux := testMux(t, &fakeDispatcher{}, store, nil)

	_ = store.CreateRequest(context.Background(), forecast.Record{
		ID: "req-1", HorizonDays: 7, CacheKey: "v1:k", Status: forecast.StatusProcessing,
	})

	w := do(mux, "/requests/req-1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var rec forecast.Record
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ID != "req-1" || rec.Status != forecast.StatusProcessing {
		t.Errorf("record = %+v", rec)
	}

	if w := do(mux, "/requests/unknown"); w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", w.Code)
	}
}

func TestGate(t *testing.T) {
	d := &fakeDispatcher{res: forecast.Result{Disposition: forecast.Accepted, RequestID: "r"}}
	mux := testMux(t, d, storage.NewMemoryStore(), func(o *Options) {
		o.APIKey = "s3cret"
		o.Limiter = httpx.NewRateLimiter(0.001, 1)
	})

	if w := do(mux, "/predict?days=7"); w.Code != http.StatusForbidden {
		t.Errorf("without key status = %d, want 403", w.Code)
	}
	if len(d.calls) != 0 {
		t.Error("dispatcher reached without credentials")
	}

	// the rejected request above already spent the only token
	if w := do(mux, "/predict?days=7", "Authorization", "Bearer s3cret"); w.Code != http.StatusTooManyRequests {
		t.Errorf("over limit status = %d, want 429", w.Code)
	}

	// health and metrics stay open
	if w := do(mux, "/healthz"); w.Code != http.StatusOK {
		t.Errorf("healthz behind gate: %d", w.Code)
	}
}
