package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/loadcast/cmd/forecaster/router"
	"github.com/HatiCode/loadcast/pkg/cache"
	"github.com/HatiCode/loadcast/pkg/forecast"
	"github.com/HatiCode/loadcast/pkg/models"
	"github.com/HatiCode/loadcast/pkg/storage"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type apiFixture struct {
	mux   http.Handler
	store *storage.MemoryStore
	clock *testClock
}

func newAPIFixture(t *testing.T, model *models.Handle) *apiFixture {
	t.Helper()

	logger := discardLogger()
	m := testMetrics()
	clock := &testClock{now: time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStore()
	c := cache.NewMemoryCacheWithClock(16, time.Hour, clock.Now)

	worker := NewWorker(model, store, store, c, time.Hour, 5*time.Second, logger)
	pool := NewPool(2, 8, worker.Run, logger, m)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		_ = pool.Stop(5 * time.Second)
		cancel()
	})

	mux := router.SetupRoutes(router.Options{
		Dispatcher:     NewDispatcher(model, c, store, pool, time.Minute, logger, m),
		Store:          store,
		Ledger:         store,
		MetricsHandler: promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		Logger:         logger,
	})
	return &apiFixture{mux: mux, store: store, clock: clock}
}

func (f *apiFixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

// waitDone polls the request status until it is terminal.
func (f *apiFixture) waitDone(t *testing.T, statusURL string) forecast.Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := f.get(t, statusURL)
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s = %d: %s", statusURL, w.Code, w.Body)
		}
		var rec forecast.Record
		if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
			t.Fatal(err)
		}
		if rec.Status.Terminal() {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("request %s did not finish", statusURL)
	return forecast.Record{}
}

func (f *apiFixture) accept(t *testing.T, target string) router.AcceptedResponse {
	t.Helper()
	w := f.get(t, target)
	if w.Code != http.StatusAccepted {
		t.Fatalf("GET %s = %d, want 202: %s", target, w.Code, w.Body)
	}
	var ack router.AcceptedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
		t.Fatal(err)
	}
	if ack.RequestID == "" || w.Header().Get("Location") != ack.StatusURL {
		t.Fatalf("ack = %+v, Location %q", ack, w.Header().Get("Location"))
	}
	return ack
}

func TestAPI_PredictLifecycle(t *testing.T) {
	f := newAPIFixture(t, handleFor(&flatModel{level: 48000}))

	ack := f.accept(t, "/predict?days=7")
	if rec := f.waitDone(t, ack.StatusURL); rec.Status != forecast.StatusDone {
		t.Fatalf("request ended %s: %s", rec.Status, rec.Error)
	}

	w := f.get(t, "/predict?days=7")
	if w.Code != http.StatusOK {
		t.Fatalf("second /predict = %d, want 200: %s", w.Code, w.Body)
	}
	var points []forecast.Point
	if err := json.Unmarshal(w.Body.Bytes(), &points); err != nil {
		t.Fatal(err)
	}
	if len(points) != 7 {
		t.Fatalf("got %d points, want 7", len(points))
	}
	if want := origin.AddDate(0, 0, 1); !points[0].Timestamp.Equal(want) {
		t.Errorf("first day = %v, want %v", points[0].Timestamp, want)
	}
	if f.store.Len() != 7 {
		t.Errorf("store has %d rows, want 7", f.store.Len())
	}

	w = f.get(t, "/get_forecasts?limit=3")
	if err := json.Unmarshal(w.Body.Bytes(), &points); err != nil || len(points) != 3 {
		t.Errorf("get_forecasts limit=3 = %s", w.Body)
	}

	// past the cache TTL the forecast is recomputed and appended again
	f.clock.Advance(61 * time.Minute)
	ack2 := f.accept(t, "/predict?days=7")
	if ack2.RequestID == ack.RequestID {
		t.Error("expired entry reused the previous request id")
	}
	f.waitDone(t, ack2.StatusURL)
	if f.store.Len() != 14 {
		t.Errorf("store has %d rows after recompute, want 14", f.store.Len())
	}
}

func TestAPI_PredictDefaultsToThirtyDays(t *testing.T) {
	f := newAPIFixture(t, handleFor(&flatModel{level: 48000}))

	ack := f.accept(t, "/predict")
	f.waitDone(t, ack.StatusURL)

	w := f.get(t, "/predict?days=30")
	if w.Code != http.StatusOK {
		t.Fatalf("/predict?days=30 = %d, want cached 200", w.Code)
	}
}

func TestAPI_FailedComputationIsRetried(t *testing.T) {
	model := &flatModel{level: 48000, err: context.DeadlineExceeded}
	f := newAPIFixture(t, handleFor(model))

	ack := f.accept(t, "/predict?days=3")
	rec := f.waitDone(t, ack.StatusURL)
	if rec.Status != forecast.StatusFailed || rec.Error == "" {
		t.Fatalf("record = %+v, want failed with error", rec)
	}
	if f.store.Len() != 0 {
		t.Error("failed computation stored rows")
	}

	// nothing was cached, so the next call starts a new computation
	again := f.accept(t, "/predict?days=3")
	if again.RequestID == ack.RequestID {
		t.Error("failed request id was reused")
	}
	f.waitDone(t, again.StatusURL)
}

func TestAPI_ModelUnavailable(t *testing.T) {
	f := newAPIFixture(t, models.Unavailable(nil))

	w := f.get(t, "/predict?days=7")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("/predict = %d, want 500", w.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "Model not loaded" {
		t.Errorf("error = %q", body["error"])
	}

	if w := f.get(t, "/get_forecasts"); w.Code != http.StatusOK || w.Body.String() != "[]\n" {
		t.Errorf("/get_forecasts = %d %q, want empty list", w.Code, w.Body)
	}
	if w := f.get(t, "/requests/unknown"); w.Code != http.StatusNotFound {
		t.Errorf("/requests/unknown = %d, want 404", w.Code)
	}
}
