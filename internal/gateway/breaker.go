package gateway

import (
	"fmt"
	"log/slog"
	"net/http"

	"annogate/pkg/platform/circuit"
	"annogate/pkg/platform/sentinel"
)

// WithCircuitBreaker guards a remote invoker. Transport errors and 5xx
// answers count as failures; while the circuit is open sub-requests fail
// fast with sentinel.ErrUnavailable.
func WithCircuitBreaker(next Invoker, b *circuit.Breaker, logger *slog.Logger) Invoker {
	return &breakerInvoker{next: next, breaker: b, logger: logger}
}

type breakerInvoker struct {
	next    Invoker
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func (i *breakerInvoker) Do(req *http.Request) (*http.Response, error) {
	if !i.breaker.Allow() {
		return nil, fmt.Errorf("circuit %s open: %w", i.breaker.Name(), sentinel.ErrUnavailable)
	}

	resp, err := i.next.Do(req)
	if err != nil || resp.StatusCode >= http.StatusInternalServerError {
		if _, change := i.breaker.RecordFailure(); change.Opened && i.logger != nil {
			i.logger.WarnContext(req.Context(), "annotation store circuit opened", "circuit", i.breaker.Name())
		}
		return resp, err
	}
	if _, change := i.breaker.RecordSuccess(); change.Closed && i.logger != nil {
		i.logger.InfoContext(req.Context(), "annotation store circuit closed", "circuit", i.breaker.Name())
	}
	return resp, nil
}
