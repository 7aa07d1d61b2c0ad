package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "zeroep"

// Metrics agrupa os coletores do relay. Um valor nil é válido e não mede nada.
type Metrics struct {
	Connections    prometheus.Gauge
	Events         *prometheus.CounterVec
	MessagesStored prometheus.Counter
	SlowConsumers  prometheus.Counter
	AuthAttempts   *prometheus.CounterVec
	LookupTimeouts prometheus.Counter
}

// New registra os coletores em reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "Conexões realtime abertas.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Eventos do protocolo por nome e resultado.",
		}, []string{"event", "result"}),
		MessagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Mensagens gravadas no log.",
		}),
		SlowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_slow_consumers_total",
			Help:      "Conexões derrubadas por não consumirem a fila de saída.",
		}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Tentativas de login por resultado.",
		}, []string{"result"}),
		LookupTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_timeouts_total",
			Help:      "Consultas de credencial, desafio ou canal que estouraram o prazo.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Connections, m.Events, m.MessagesStored, m.SlowConsumers, m.AuthAttempts, m.LookupTimeouts,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

// Event conta um evento do protocolo; result é "ok" ou o código do erro
func (m *Metrics) Event(event, result string) {
	if m != nil {
		m.Events.WithLabelValues(event, result).Inc()
	}
}

func (m *Metrics) MessageStored() {
	if m != nil {
		m.MessagesStored.Inc()
	}
}

func (m *Metrics) SlowConsumer() {
	if m != nil {
		m.SlowConsumers.Inc()
	}
}

func (m *Metrics) AuthAttempt(result string) {
	if m != nil {
		m.AuthAttempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) LookupTimeout() {
	if m != nil {
		m.LookupTimeouts.Inc()
	}
}
