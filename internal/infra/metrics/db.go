package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns, dbPoolAcquires) }

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      "connections",
			Help:      "Postgres pool connections by state.",
		},
		[]string{"state"}, // total, idle, acquired, max
	)
	dbPoolAcquires = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      "acquires",
			Help:      "Cumulative pool acquires; kind=empty counts acquires that had to wait for a connection.",
		},
		[]string{"kind"},
	)
)

// PoolStats is the subset of pgxpool.Stat the exporter reads.
type PoolStats struct {
	Total, Idle, Acquired, Max int32
	Acquires, EmptyAcquires    int64
}

func SetDBPoolStats(s PoolStats) {
	dbPoolConns.WithLabelValues("total").Set(float64(s.Total))
	dbPoolConns.WithLabelValues("idle").Set(float64(s.Idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(s.Acquired))
	dbPoolConns.WithLabelValues("max").Set(float64(s.Max))
	dbPoolAcquires.WithLabelValues("all").Set(float64(s.Acquires))
	dbPoolAcquires.WithLabelValues("empty").Set(float64(s.EmptyAcquires))
}
