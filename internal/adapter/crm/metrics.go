package crm

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts CRM traffic. A nil *Metrics records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	tokenRequests prometheus.Counter
	authRetries   prometheus.Counter
}

// NewMetrics registers the CRM collectors on reg (the default registerer when nil).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_requests_total",
			Help: "CRM Web API requests by operation and HTTP status (0 for transport errors).",
		}, []string{"operation", "status"}),
		tokenRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crm_token_requests_total",
			Help: "Client-credentials token requests sent to the authority.",
		}),
		authRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crm_auth_retries_total",
			Help: "Requests replayed after a 401 with a refreshed token.",
		}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.tokenRequests, m.authRetries} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) request(op string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, strconv.Itoa(status)).Inc()
}

func (m *Metrics) tokenRequest() {
	if m == nil {
		return
	}
	m.tokenRequests.Inc()
}

func (m *Metrics) authRetry() {
	if m == nil {
		return
	}
	m.authRetries.Inc()
}
