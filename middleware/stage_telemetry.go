package middleware

import (
	"strconv"
	"time"

	"github.com/archimedes-run/archimedes/telemetry"
)

// TelemetryStage records counters/histograms/gauge, tagged by operation id
// and status code, and emits the one structured log record required per
// request.
type TelemetryStage struct {
	Recorder *telemetry.Recorder
}

func (TelemetryStage) Name() string { return "telemetry" }

func (s TelemetryStage) Process(req *RequestView, next Next) *Response {
	s.Recorder.InFlightRequests.Inc()
	defer s.Recorder.InFlightRequests.Dec()

	start := time.Now()
	s.Recorder.RequestSize.WithLabelValues(req.Context.OperationID).Observe(float64(len(req.Body)))

	resp := next(req)

	elapsed := time.Since(start)
	statusStr := strconv.Itoa(resp.Status)
	op := req.Context.OperationID

	s.Recorder.RequestsTotal.WithLabelValues(op, statusStr).Inc()
	s.Recorder.RequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	s.Recorder.ResponseSize.WithLabelValues(op).Observe(float64(len(resp.Body)))

	if d, ok := req.Context.Decision(); ok {
		result := "deny"
		if d.Allowed {
			result = "allow"
		}
		s.Recorder.AuthzDecisionsTotal.WithLabelValues(result).Inc()
	}

	s.Recorder.LogRequest(req.Context.RequestID, req.Context.TraceID, op, statusStr, float64(elapsed.Microseconds())/1000.0)
	return resp
}
