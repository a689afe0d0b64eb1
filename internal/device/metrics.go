package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deviceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "failsafe",
	Subsystem: "device",
	Name:      "requests_total",
	Help:      "Requests issued to the recovery server by endpoint and result",
}, []string{"endpoint", "result"})

func observe(endpoint string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case IsRejected(err):
		result = "rejected"
	default:
		result = "transport_error"
	}
	deviceRequests.WithLabelValues(endpoint, result).Inc()
}
