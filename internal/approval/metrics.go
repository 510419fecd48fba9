package approval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pinAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "glove_pin_attempts_total",
		Help: "Total number of PIN verification attempts by outcome",
	},
	[]string{"outcome"},
)

func recordPINAttempt(outcome string) {
	pinAttempts.WithLabelValues(outcome).Inc()
}
