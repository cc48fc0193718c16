package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
)

// HealthHandler always answers 200 "OK".
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeOK(w)
	}
}

// HealthHandlerWithCheck returns a readiness handler. Checks run in name
// order with the request context; the first failure answers 503 with
// {"error": "<name>: <msg>"}.
func HealthHandlerWithCheck(checks map[string]func(ctx context.Context) error) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		for _, name := range names {
			if err := checks[name](r.Context()); err != nil {
				WriteErrorMessage(w, http.StatusServiceUnavailable, fmt.Sprintf("%s: %v", name, err))
				return
			}
		}
		writeOK(w)
	}
}

func writeOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}
