package policy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var policyDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "glove_policy_decisions_total",
		Help: "Total number of policy decisions by outcome",
	},
	[]string{"decision", "policy_id"},
)

func recordDecision(d Decision) {
	policyDecisions.WithLabelValues(d.Decision, d.PolicyID).Inc()
}
