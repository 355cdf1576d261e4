package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(adminActionTotal) }

var adminActionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "admin",
		Name:      "actions_total",
		Help:      "Admin API calls by action and result.",
	},
	[]string{"action", "status"}, // status: authorized, unauthorized, failed
)

func IncAdminAction(action, status string) {
	adminActionTotal.WithLabelValues(norm(action), norm(status)).Inc()
}
