package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// NewBaseMuxWithReady returns a mux serving /healthz and /readyz. Callers
// register their own routes on it.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		results := RunChecks(r.Context(), 2*time.Second, checks...)
		status := http.StatusOK
		for _, v := range results {
			if v != "ok" {
				status = http.StatusServiceUnavailable
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(results)
	})
	return mux
}

// RunChecks runs every check with its own timeout and reports "ok" or the
// error text per check name.
func RunChecks(ctx context.Context, timeout time.Duration, checks ...ReadyCheck) map[string]string {
	results := make(map[string]string, len(checks))
	for _, check := range checks {
		if check.Check == nil {
			continue
		}
		name := check.Name
		if name == "" {
			name = "dependency"
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		err := check.Check(cctx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	return results
}
