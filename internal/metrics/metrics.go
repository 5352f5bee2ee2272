package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StatusOK = "ok"

	labelMethod = "method"
	labelStatus = "status"
	labelKind   = "kind"
	labelRoute  = "route"
)

// Store holds the explorer's collectors on a private registry so tests can
// build as many stores as they like. A nil *Store records nothing.
type Store struct {
	Registry     *prometheus.Registry
	BuildInfo    prometheus.Gauge
	RPCCalls     *prometheus.CounterVec
	RPCDuration  *prometheus.HistogramVec
	Queries      *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
	FeedRefresh  *prometheus.CounterVec
}

func New(prefix, version string) *Store {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	s := &Store{
		Registry: reg,
		BuildInfo: factory.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_build_info", prefix),
			Help: "Build information",
			ConstLabels: prometheus.Labels{
				"version":    version,
				"go_version": runtime.Version(),
			},
		}),
		RPCCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_rpc_calls_total", prefix),
			Help: "Node RPC calls by method and outcome",
		}, []string{labelMethod, labelStatus}),
		RPCDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_rpc_duration_seconds", prefix),
			Help:    "Node RPC round-trip time",
			Buckets: prometheus.DefBuckets,
		}, []string{labelMethod}),
		Queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_queries_total", prefix),
			Help: "User lookups by kind and outcome",
		}, []string{labelKind, labelStatus}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_http_requests_total", prefix),
			Help: "Served HTTP requests by route and status code",
		}, []string{labelRoute, labelStatus}),
		FeedRefresh: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_feed_refresh_total", prefix),
			Help: "Latest-blocks feed refreshes by outcome",
		}, []string{labelStatus}),
	}
	s.BuildInfo.Set(1)
	return s
}

// Handler serves the store's registry.
func (s *Store) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}

func (s *Store) ObserveRPC(method, status string, elapsed time.Duration) {
	if s == nil {
		return
	}
	s.RPCCalls.WithLabelValues(method, status).Inc()
	s.RPCDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (s *Store) ObserveQuery(kind, status string) {
	if s == nil {
		return
	}
	s.Queries.WithLabelValues(kind, status).Inc()
}

func (s *Store) ObserveHTTP(route string, code int) {
	if s == nil {
		return
	}
	s.HTTPRequests.WithLabelValues(route, fmt.Sprint(code)).Inc()
}

func (s *Store) ObserveFeed(status string) {
	if s == nil {
		return
	}
	s.FeedRefresh.WithLabelValues(status).Inc()
}
