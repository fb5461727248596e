package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the trading counters and gauges on the default
// Prometheus registry. It satisfies the engine's MetricsRecorder port.
type Metrics struct {
	ordersTotal *prometheus.CounterVec
	cyclesTotal *prometheus.CounterVec
	realizedPnL prometheus.Gauge
	openSlots   prometheus.Gauge
	lastPrice   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		ordersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_orders_total",
			Help: "Orders placed, labeled by side.",
		}, []string{"side"}),
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_cycles_total",
			Help: "Poll cycles, labeled by outcome.",
		}, []string{"result"}),
		realizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grid_realized_pnl",
			Help: "Cumulative realized profit and loss in quote currency.",
		}),
		openSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grid_open_slots",
			Help: "Number of grid levels currently holding inventory.",
		}),
		lastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grid_last_price",
			Help: "Last reference price computed from the trade feed.",
		}),
	}

	prometheus.MustRegister(m.ordersTotal, m.cyclesTotal, m.realizedPnL, m.openSlots, m.lastPrice)
	return m
}

func (m *Metrics) OrderPlaced(side string) {
	m.ordersTotal.WithLabelValues(side).Inc()
}

func (m *Metrics) CycleResult(result string) {
	m.cyclesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetRealizedPnL(v float64) {
	m.realizedPnL.Set(v)
}

func (m *Metrics) SetOpenSlots(n int) {
	m.openSlots.Set(float64(n))
}

func (m *Metrics) SetLastPrice(v float64) {
	m.lastPrice.Set(v)
}
