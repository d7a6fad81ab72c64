// Package health serves liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/blobdrop/service/internal/response"
)

// Checker reports whether one dependency is usable.
type Checker func(ctx context.Context) error

// Status is the state of a component.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Report is the body of a health response.
type Report struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of a single checker.
type CheckResult struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Handler aggregates named checkers.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewHandler creates a Handler whose readiness checks share timeout.
func NewHandler(timeout time.Duration) *Handler {
	return &Handler{checkers: make(map[string]Checker), timeout: timeout}
}

// Register adds a named checker consulted by Readiness.
func (h *Handler) Register(name string, c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = c
}

// Liveness answers 200 as long as the process serves requests.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, Report{Status: StatusUp, Timestamp: time.Now().UTC()})
}

// Readiness runs every checker and answers 200 or 503.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	report := Report{Status: StatusUp, Checks: make(map[string]CheckResult, len(names))}
	for _, name := range names {
		h.mu.RLock()
		check := h.checkers[name]
		h.mu.RUnlock()

		if err := check(ctx); err != nil {
			report.Checks[name] = CheckResult{Status: StatusDown, Error: err.Error()}
			report.Status = StatusDown
			continue
		}
		report.Checks[name] = CheckResult{Status: StatusUp}
	}
	report.Timestamp = time.Now().UTC()

	status := http.StatusOK
	if report.Status == StatusDown {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, report)
}
