package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var providerFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "glove_notifier_provider_failures_total",
		Help: "Total number of per-provider notification failures",
	},
	[]string{"provider"},
)

func recordProviderFailure(provider string) {
	providerFailures.WithLabelValues(provider).Inc()
}
