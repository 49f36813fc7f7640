package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relex/gotils/logger"
	"github.com/relex/slog-relay/defs"
)

const metricsIndexPage = `<html>
	<head><title>slog-relay metrics listener</title></head>
	<body>
		<h1>Metrics listener for slog-relay</h1>
		<ul>
			<li><a href='/debug/pprof/'>/debug/pprof/</a></li>
			<li><a href='/metrics'>/metrics</a></li>
		</ul>
	</body>
</html>`

// NewMetricsHandler creates a HTTP handler serving Prometheus metrics from the default registry and pprof
func NewMetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, metricsIndexPage)
	})
	return mux
}

// LaunchMetricsListener starts a HTTP server for Prometheus metrics
//
// Returns nil if address is empty
func LaunchMetricsListener(address string) *http.Server {
	if address == "" {
		return nil
	}
	mlogger := logger.WithField(defs.LabelComponent, "MetricsListener")
	server := &http.Server{
		Addr:              address,
		Handler:           NewMetricsHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		mlogger.Infof("listening on %s for metrics...", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mlogger.Error("Prometheus listener error: ", err)
		}
	}()
	return server
}

// ShutdownMetricsListener stops the server launched by LaunchMetricsListener, if any
func ShutdownMetricsListener(server *http.Server, timeout time.Duration) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("error shutting down metrics listener: %v", err)
	}
}
