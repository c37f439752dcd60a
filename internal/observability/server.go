package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// MetricsServer exposes the gatherer on /metrics as a lifecycle component.
type MetricsServer struct {
	addr     string
	gatherer prometheus.Gatherer
	srv      *http.Server
	done     chan struct{}
}

func NewMetricsServer(addr string, gatherer prometheus.Gatherer) *MetricsServer {
	return &MetricsServer{addr: addr, gatherer: gatherer}
}

func (s *MetricsServer) Start(ctx context.Context) error {
	if s.addr == "" {
		return nil
	}
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("object", "MetricsServer").WithField("error", err.Error()).Error("metrics server failed")
		}
	}()
	log.WithField("object", "MetricsServer").Infof("serving metrics on %s", listener.Addr())
	return nil
}

func (s *MetricsServer) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}

// Tracing installs an SDK tracer provider globally while running.
type Tracing struct {
	enabled  bool
	provider *sdktrace.TracerProvider
}

func NewTracing(enabled bool) *Tracing {
	return &Tracing{enabled: enabled}
}

func (t *Tracing) Start(context.Context) error {
	if !t.enabled {
		return nil
	}
	t.provider = sdktrace.NewTracerProvider()
	otel.SetTracerProvider(t.provider)
	return nil
}

func (t *Tracing) Stop(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
