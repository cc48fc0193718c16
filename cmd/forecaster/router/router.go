// Package router configures the HTTP routes of the forecast API.
//
// Routes configured:
//   - GET /                         - liveness banner
//   - GET /predict?days=<1..365>    - cached forecast (200) or accepted computation (202)
//   - GET /get_forecasts            - stored forecast points, optionally paged with limit/offset
//   - GET /requests/{id}            - status of a dispatched computation
//   - GET /healthz                  - process liveness
//   - GET /readyz                   - model and backing stores
//   - GET /metrics                  - Prometheus metrics
//
// The forecast routes sit behind the optional API key and per-client rate limit.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/loadcast/pkg/forecast"
	"github.com/HatiCode/loadcast/pkg/httpx"
	"github.com/HatiCode/loadcast/pkg/storage"
)

// Dispatcher turns a forecast request into a result.
type Dispatcher interface {
	Dispatch(ctx context.Context, req forecast.Request) (forecast.Result, error)
}

// Options wires the routes.
type Options struct {
	Dispatcher Dispatcher
	Store      storage.ForecastStore
	Ledger     storage.Ledger

	// ReadyChecks are run by /readyz, keyed by component name.
	ReadyChecks map[string]func(ctx context.Context) error

	// MetricsHandler defaults to promhttp.Handler().
	MetricsHandler http.Handler

	APIKey  string
	Limiter *httpx.RateLimiter
	Logger  *slog.Logger
}

// AcceptedResponse is the body of a 202 answer.
type AcceptedResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	StatusURL string `json:"status_url"`
}

const storeTimeout = 5 * time.Second

// SetupRoutes configures HTTP endpoints for the forecaster.
func SetupRoutes(opts Options) *http.ServeMux {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.Handler()
	}

	gate := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, opts.Limiter.Middleware, httpx.APIKeyMiddleware(opts.APIKey))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handleRoot)
	mux.Handle("GET /predict", gate(handlePredict(opts.Dispatcher, opts.Logger)))
	mux.Handle("GET /get_forecasts", gate(handleListForecasts(opts.Store, opts.Logger)))
	mux.Handle("GET /requests/{id}", gate(handleGetRequest(opts.Ledger, opts.Logger)))

	mux.Handle("/healthz", httpx.HealthHandler())
	mux.Handle("/readyz", httpx.HealthHandlerWithCheck(opts.ReadyChecks))
	mux.Handle("/metrics", opts.MetricsHandler)

	return mux
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Energy Load Forecast API is up!"})
}

// handlePredict returns a handler for GET /predict?days=<n>.
func handlePredict(d Dispatcher, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := forecast.DefaultHorizonDays
		if raw := r.URL.Query().Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				httpx.WriteError(w, http.StatusUnprocessableEntity,
					&forecast.ValidationError{Field: "days", Reason: "must be an integer"})
				return
			}
			days = n
		}

		res, err := d.Dispatch(r.Context(), forecast.Request{HorizonDays: days})
		if err != nil {
			writeDispatchError(w, err, logger)
			return
		}

		if res.Disposition == forecast.Cached {
			if err := httpx.WriteJSON(w, http.StatusOK, res.Points); err != nil {
				logger.Error("failed to write JSON response", "error", err)
			}
			return
		}

		statusURL := "/requests/" + res.RequestID
		w.Header().Set("Location", statusURL)
		if err := httpx.WriteJSON(w, http.StatusAccepted, AcceptedResponse{
			Message:   "Forecast generation in progress",
			RequestID: res.RequestID,
			StatusURL: statusURL,
		}); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func writeDispatchError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case forecast.IsValidation(err):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, forecast.ErrModelUnavailable):
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "Model not loaded")
	case errors.Is(err, forecast.ErrBusy):
		w.Header().Set("Retry-After", "5")
		httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "forecast queue is full, retry later")
	case forecast.IsConnectivity(err):
		logger.Error("dispatch failed", "error", err)
		httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		logger.Error("dispatch failed", "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

// handleListForecasts returns a handler for GET /get_forecasts.
func handleListForecasts(store storage.ForecastStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit")
		if err != nil {
			httpx.WriteError(w, http.StatusUnprocessableEntity, err)
			return
		}
		offset, err := queryInt(r, "offset")
		if err != nil {
			httpx.WriteError(w, http.StatusUnprocessableEntity, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
		defer cancel()

		points, err := store.List(ctx, forecast.Page{Limit: limit, Offset: offset})
		if err != nil {
			logger.Error("failed to list forecasts", "error", err)
			httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "forecast store unavailable")
			return
		}
		if points == nil {
			points = []forecast.Point{}
		}

		if err := httpx.WriteJSON(w, http.StatusOK, points); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleGetRequest returns a handler for GET /requests/{id}.
func handleGetRequest(ledger storage.Ledger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
		defer cancel()

		rec, err := ledger.GetRequest(ctx, id)
		if err != nil {
			if errors.Is(err, forecast.ErrNotFound) {
				httpx.WriteErrorMessage(w, http.StatusNotFound, "request not found")
				return
			}
			logger.Error("failed to get request", "request_id", id, "error", err)
			httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "request ledger unavailable")
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, rec); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// queryInt parses a non-negative integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &forecast.ValidationError{Field: name, Reason: "must be a non-negative integer"}
	}
	return n, nil
}
