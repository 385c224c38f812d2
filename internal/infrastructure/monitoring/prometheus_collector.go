package monitoring

import (
	"vidcall/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	connectionsActive prometheus.Gauge
	peersRegistered   prometheus.Gauge

	envelopesRelayed   *prometheus.CounterVec
	relayUnavailable   prometheus.Counter
	presenceBroadcasts prometheus.Counter
	presenceFanout     prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vidcall_connections_active",
			Help: "Number of open signaling WebSocket connections",
		}),

		peersRegistered: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vidcall_peers_registered",
			Help: "Number of peers currently registered for calls",
		}),

		envelopesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vidcall_envelopes_relayed_total",
			Help: "Total signaling envelopes relayed, by type",
		}, []string{"type"}),

		relayUnavailable: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vidcall_relay_unavailable_total",
			Help: "Total offers addressed to peers with no live connection",
		}),

		presenceBroadcasts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vidcall_presence_broadcasts_total",
			Help: "Total presence snapshot broadcasts",
		}),

		presenceFanout: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidcall_presence_fanout",
			Help:    "Connections reached per presence broadcast",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
}

func (p *PrometheusCollector) ConnectionClosed() {
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) PeerRegistered(total int) {
	p.peersRegistered.Set(float64(total))
}

func (p *PrometheusCollector) PeerUnregistered(total int) {
	p.peersRegistered.Set(float64(total))
}

func (p *PrometheusCollector) EnvelopeRelayed(t domain.EnvelopeType) {
	p.envelopesRelayed.WithLabelValues(string(t)).Inc()
}

func (p *PrometheusCollector) RelayUnavailable() {
	p.relayUnavailable.Inc()
}

func (p *PrometheusCollector) PresenceBroadcast(fanout int) {
	p.presenceBroadcasts.Inc()
	p.presenceFanout.Observe(float64(fanout))
}
