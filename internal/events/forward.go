package events

import (
	"strconv"

	"github.com/kelindar/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var droppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "failsafe",
	Subsystem: "events",
	Name:      "dropped_total",
	Help:      "Events not delivered to a stream because its buffer was full",
}, []string{"type"})

// Forward delivers every T published on bus into ch until the returned
// function is called. A slow reader loses events rather than blocking
// the publisher.
func Forward[T Event](bus *Bus, ch chan<- any) func() {
	var zero T
	dropped := droppedEvents.WithLabelValues(strconv.FormatUint(uint64(zero.Type()), 10))
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			dropped.Inc()
		}
	})
}
