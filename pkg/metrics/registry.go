package metrics

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

type poolSource interface {
	SQLDB() (*sql.DB, error)
}

// RegisterDBStats exports the pool's sql.DBStats as go_sql_* series labelled
// with db_name.
func RegisterDBStats(reg prometheus.Registerer, src poolSource, dbName string) error {
	pool, err := src.SQLDB()
	if err != nil {
		return err
	}
	return reg.Register(collectors.NewDBStatsCollector(pool, dbName))
}
