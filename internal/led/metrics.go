package led

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "failsafe",
		Subsystem: "led",
		Name:      "requests_total",
		Help: "Indicator requests by result: queued (accepted by the backend), " +
			"dropped (lock engaged), rejected (backend refused), failed (delivery failed after queueing)",
	}, []string{"result"})

	ledTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "failsafe",
		Subsystem: "led",
		Name:      "ticks_total",
		Help:      "Marquee animation frames computed",
	})
)
