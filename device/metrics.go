package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	protocolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onvif_protocol_calls_total",
		Help: "Device-protocol calls by call kind and result",
	}, []string{"call", "result"})

	protocolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "onvif_protocol_call_duration_seconds",
		Help:    "Duration of device-protocol calls",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"call"})
)

// resultLabel is "ok" or the failure kind of a call
func resultLabel(o Outcome) string {
	if o.Success {
		return "ok"
	}
	if kind, ok := failureKind(o.Err); ok {
		return string(kind)
	}
	return "error"
}
