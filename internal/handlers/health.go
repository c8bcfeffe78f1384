package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Checker reports the health of one dependency.
type Checker func(ctx context.Context) error

const checkTimeout = 3 * time.Second

func runChecks(ctx context.Context, checks map[string]Checker) (map[string]interface{}, bool) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	results := make(map[string]interface{}, len(checks))
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checks[name](cctx)
		cancel()
		if err != nil {
			healthy = false
			results[name] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
			continue
		}
		results[name] = map[string]interface{}{"status": "healthy"}
	}
	return results, healthy
}

func healthHandler(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, healthy := runChecks(r.Context(), checks)
		status, code := "ok", http.StatusOK
		if !healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().Unix(),
			"checks":    results,
		})
	}
}

// livenessHandler does not check dependencies
func livenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

// readinessHandler reports ready only when the critical checks pass
func readinessHandler(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if results, healthy := runChecks(r.Context(), checks); !healthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":    "not_ready",
				"checks":    results,
				"timestamp": time.Now().Unix(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ready",
			"timestamp": time.Now().Unix(),
		})
	}
}
