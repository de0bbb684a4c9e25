// Package exporters publishes the session metrics over HTTP and SSE.
package exporters

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/screencap/internal/logging"
)

// HTTPHandler serves the default registry for /metrics. Scrapers that ask
// for OpenMetrics get it; a failing collector is logged and the rest of
// the registry is still served.
func HTTPHandler() http.Handler {
	errLog := slog.NewLogLogger(logging.GetLogger("metrics").Handler(), slog.LevelWarn)
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:          errLog,
			ErrorHandling:     promhttp.ContinueOnError,
			EnableOpenMetrics: true,
		}))
}
