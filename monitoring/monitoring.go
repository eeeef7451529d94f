package monitoring

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kaleidoswap/desktop-app-sub002/paymetrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter serves the payment engine metrics over HTTP.
type Exporter struct {
	// Recorder feeds the exported collectors.
	Recorder *paymetrics.PrometheusRecorder

	registry *prometheus.Registry
	server   *http.Server
	listener net.Listener

	stopOnce sync.Once
}

// NewExporter creates a registry holding the engine collectors along with
// the process and Go runtime collectors.
func NewExporter() (*Exporter, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)

	rec, err := paymetrics.NewPrometheusRecorder(reg)
	if err != nil {
		return nil, err
	}

	return &Exporter{
		Recorder: rec,
		registry: reg,
	}, nil
}

// Handler returns the /metrics handler of the exporter's registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Start launches the exporter on the given address.
func (e *Exporter) Start(listen string) error {
	lis, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())

	e.listener = lis
	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Infof("Prometheus exporter started on %v/metrics", lis.Addr())

	go func() {
		err := e.server.Serve(lis)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Prometheus exporter stopped: %v", err)
		}
	}()

	return nil
}

// Addr returns the address the exporter listens on, nil before Start.
func (e *Exporter) Addr() net.Addr {
	if e.listener == nil {
		return nil
	}

	return e.listener.Addr()
}

// Stop shuts the HTTP server down.
func (e *Exporter) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		if e.server == nil {
			return
		}

		ctx, cancel := context.WithTimeout(
			context.Background(), 5*time.Second,
		)
		defer cancel()

		err = e.server.Shutdown(ctx)
	})

	return err
}
