package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout is the maximum time allowed for all health probes to
// complete. A probe exceeding the deadline marks the service unhealthy.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a health check for one critical dependency.
type HealthProbe interface {
	// Name returns a human-readable identifier for the probe (e.g. "database").
	Name() string

	// Check performs the health check. It should respect the context
	// deadline and return an error if the subsystem is unhealthy.
	Check(ctx context.Context) error
}

// componentStatus represents the health state of a single subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the JSON response body for the health check endpoint.
type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HealthHandler runs all probes concurrently with a shared timeout and
// reports 200 when everything is healthy, 503 otherwise. The endpoint is
// public (no authentication).
func HealthHandler(probes []HealthProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if len(probes) == 0 {
			JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
			return
		}

		type probeResult struct {
			name string
			err  error
		}

		var (
			mu      sync.Mutex
			results = make(map[string]probeResult, len(probes))
			wg      sync.WaitGroup
		)

		for _, probe := range probes {
			wg.Add(1)
			go func(p HealthProbe) {
				defer wg.Done()

				var err error
				func() {
					defer func() {
						if rvr := recover(); rvr != nil {
							err = fmt.Errorf("probe panicked: %v", rvr)
						}
					}()
					err = p.Check(ctx)
				}()

				mu.Lock()
				results[p.Name()] = probeResult{name: p.Name(), err: err}
				mu.Unlock()
			}(probe)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			// Timeout: report with whatever results arrived; missing probes
			// count as unhealthy below.
		}

		mu.Lock()
		collected := make(map[string]probeResult, len(results))
		for k, v := range results {
			collected[k] = v
		}
		mu.Unlock()

		components := make(map[string]componentStatus, len(probes))
		allHealthy := true

		for _, probe := range probes {
			name := probe.Name()
			result, ok := collected[name]
			switch {
			case !ok:
				allHealthy = false
				components[name] = componentStatus{
					Status:  "unhealthy",
					Message: "health check timed out",
				}
			case result.err != nil:
				allHealthy = false
				components[name] = componentStatus{
					Status:  "unhealthy",
					Message: result.err.Error(),
				}
			default:
				components[name] = componentStatus{Status: "healthy"}
			}
		}

		resp := healthResponse{Components: components}
		if allHealthy {
			resp.Status = "healthy"
			JSON(w, r, http.StatusOK, resp)
		} else {
			resp.Status = "unhealthy"
			JSON(w, r, http.StatusServiceUnavailable, resp)
		}
	}
}
