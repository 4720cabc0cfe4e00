package observability

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"
)

const (
	statusUp   = "up"
	statusDown = "down"
)

// ComponentStatus is the readiness result of one checker.
type ComponentStatus struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// ReadinessResponse is the body of the readiness probe.
type ReadinessResponse struct {
	Ready      bool                       `json:"ready"`
	Components map[string]ComponentStatus `json:"components"`
}

// liveness only proves the process still serves HTTP.
func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness answers 200 only when every checker passes within the
// configured timeout, and 503 otherwise.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	results := make([]ComponentStatus, len(s.checkers))
	var g errgroup.Group
	for i, c := range s.checkers {
		g.Go(func() error {
			results[i] = s.probe(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	resp := ReadinessResponse{Ready: true, Components: make(map[string]ComponentStatus, len(results))}
	for i, st := range results {
		resp.Components[s.checkers[i].Name()] = st
		if st.Status != statusUp {
			resp.Ready = false
		}
	}

	if !resp.Ready {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}

func (s *Server) probe(ctx context.Context, c Checker) ComponentStatus {
	start := time.Now()
	err := c.Check(ctx)
	st := ComponentStatus{Status: statusUp, LatencyMs: time.Since(start).Milliseconds()}
	if err == nil {
		return st
	}

	s.logger.Warn("readiness check failed",
		slog.String("component", c.Name()),
		slog.String("error", err.Error()),
	)
	st.Status = statusDown
	st.Error = err.Error()
	return st
}
