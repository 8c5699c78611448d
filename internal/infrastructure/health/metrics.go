package health

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"stockpulse/internal/application/port"
)

// Metrics Prometheus 指标镜像，只由 Monitor 的 Run 协程更新
type Metrics struct {
	registry *prometheus.Registry

	received      prometheus.Counter
	malformed     prometheus.Counter
	published     prometheus.Counter
	publishDrops  prometheus.Counter
	staged        prometheus.Counter
	stagingErrors prometheus.Counter
	stagingFatals prometheus.Counter
	reconnects    prometheus.Counter
	connState     prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stockpulse", Subsystem: "ingest", Name: name, Help: help,
		})
	}

	return &Metrics{
		registry:      reg,
		received:      counter("messages_received_total", "Raw messages received from the provider"),
		malformed:     counter("messages_malformed_total", "Messages dropped by the normalizer"),
		published:     counter("ticks_published_total", "Ticks fanned out to subscribers"),
		publishDrops:  counter("publish_drops_total", "Ticks evicted from subscriber buffers"),
		staged:        counter("ticks_staged_total", "Ticks durably written to the staging store"),
		stagingErrors: counter("staging_errors_total", "Staging write attempts that failed"),
		stagingFatals: counter("staging_fatal_total", "Ticks lost from staging after the retry budget"),
		reconnects:    counter("reconnects_total", "Provider reconnect attempts"),
		connState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "stockpulse", Subsystem: "ingest", Name: "conn_state",
			Help: "Provider connection state (enum value of ConnState)",
		}),
	}
}

func (m *Metrics) apply(ev port.HealthEvent) {
	switch ev.Kind {
	case port.HealthReceived:
		m.received.Inc()
	case port.HealthMalformed:
		m.malformed.Inc()
	case port.HealthPublished:
		m.published.Inc()
	case port.HealthPublishDrop:
		m.publishDrops.Inc()
	case port.HealthStaged:
		m.staged.Inc()
	case port.HealthStagingError:
		m.stagingErrors.Inc()
	case port.HealthStagingFatal:
		m.stagingFatals.Inc()
	case port.HealthReconnect:
		m.reconnects.Inc()
	case port.HealthStateChange:
		m.connState.Set(float64(ev.State))
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 启动指标端点 /metrics
func (m *Metrics) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server exited")
		}
	}()
}
