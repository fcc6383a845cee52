package usecase

import (
	"sync/atomic"
	"time"
)

const (
	opVerifyCNIC = "verify_cnic"
	opFaceVerify = "face_verify"
	opShopVerify = "shop_verify"
)

// metrics holds process-local request counters. Nothing is persisted; the
// summary resets with the process.
type metrics struct {
	ops map[string]*opCounters
}

type opCounters struct {
	requests       atomic.Int64
	failures       atomic.Int64
	totalLatencyMs atomic.Int64
}

func newMetrics() *metrics {
	return &metrics{ops: map[string]*opCounters{
		opVerifyCNIC: {},
		opFaceVerify: {},
		opShopVerify: {},
	}}
}

// observe records one finished operation. Meant to be deferred with the
// operation start time and a pointer to the named error result.
func (m *metrics) observe(op string, start time.Time, err *error) {
	counters, ok := m.ops[op]
	if !ok {
		return
	}
	counters.requests.Add(1)
	counters.totalLatencyMs.Add(time.Since(start).Milliseconds())
	if err != nil && *err != nil {
		counters.failures.Add(1)
	}
}

// OperationMetrics is the per-endpoint slice of the summary.
type OperationMetrics struct {
	Requests int64 `json:"requests"`
	Failures int64 `json:"failures"`
}

// MetricsSummary represents aggregated verification insights.
type MetricsSummary struct {
	TotalRequests              int64                       `json:"total_requests"`
	SuccessfulRequests         int64                       `json:"successful_requests"`
	SuccessRate                float64                     `json:"success_rate"`
	AverageProcessingLatencyMs float64                     `json:"average_processing_latency_ms"`
	Operations                 map[string]OperationMetrics `json:"operations"`
}

// GetMetricsSummary aggregates request metrics accumulated since startup.
func (uc *KYCUseCase) GetMetricsSummary() *MetricsSummary {
	summary := &MetricsSummary{Operations: make(map[string]OperationMetrics)}

	var totalLatency int64
	for name, counters := range uc.metrics.ops {
		requests := counters.requests.Load()
		failures := counters.failures.Load()
		summary.TotalRequests += requests
		summary.SuccessfulRequests += requests - failures
		totalLatency += counters.totalLatencyMs.Load()
		summary.Operations[name] = OperationMetrics{Requests: requests, Failures: failures}
	}

	if summary.TotalRequests > 0 {
		summary.SuccessRate = float64(summary.SuccessfulRequests) / float64(summary.TotalRequests)
		summary.AverageProcessingLatencyMs = float64(totalLatency) / float64(summary.TotalRequests)
	}
	return summary
}
