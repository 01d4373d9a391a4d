package engine

import (
	"encoding/json"
	"time"

	"github.com/legaladvisor/engine/internal/errs"
	"github.com/legaladvisor/engine/internal/obs"
	"github.com/legaladvisor/engine/internal/tools"
)

// instrumentedRegistry decorates *tools.Registry with Prometheus
// timing, grounded on the teacher's RecordToolExecution call site in
// internal/agent/tool_exec.go (time.Since around the call, then one
// metrics call with name/status/duration).
type instrumentedRegistry struct {
	inner   *tools.Registry
	metrics *obs.Metrics
}

func newInstrumentedRegistry(inner *tools.Registry, metrics *obs.Metrics) *instrumentedRegistry {
	return &instrumentedRegistry{inner: inner, metrics: metrics}
}

func (r *instrumentedRegistry) Execute(ctx *tools.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	start := time.Now()
	result, err := r.inner.Execute(ctx, name, args)
	if r.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
			if errs.KindOf(err) == errs.KindNotFound {
				status = "not_found"
			}
		}
		r.metrics.RecordToolExecution(name, status, time.Since(start).Seconds())
	}
	return result, err
}
