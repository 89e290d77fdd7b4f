package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// poolStat is the subset of *pgxpool.Stat the gauges read.
type poolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
	MaxConns() int32
}

// RegisterPgxPoolMetrics exposes core_db pool statistics as gauges.
func RegisterPgxPoolMetrics(pool *pgxpool.Pool) {
	registerPoolGauges(prometheus.DefaultRegisterer, func() poolStat { return pool.Stat() })
}

func registerPoolGauges(reg prometheus.Registerer, stat func() poolStat) {
	gauges := []struct {
		name  string
		help  string
		value func(poolStat) int32
	}{
		{"acquired_conns", "Connections currently checked out of the pool", poolStat.AcquiredConns},
		{"idle_conns", "Idle connections held by the pool", poolStat.IdleConns},
		{"total_conns", "Connections open in the pool", poolStat.TotalConns},
		{"max_conns", "Upper bound on pool size", poolStat.MaxConns},
	}
	for _, g := range gauges {
		value := g.value
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "runnable",
			Subsystem: "core_db",
			Name:      g.name,
			Help:      g.help,
		}, func() float64 {
			return float64(value(stat()))
		}))
	}
}
