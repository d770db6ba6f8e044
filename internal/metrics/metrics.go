package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters exported by the detector. A nil *Metrics is
// valid and counts nothing, so components can be wired without a registry.
type Metrics struct {
	zoneTransitions     *prometheus.CounterVec
	alertsDelivered     *prometheus.CounterVec
	alertsDeduplicated  prometheus.Counter
	acquisitionFailures prometheus.Counter
	persistenceFailures prometheus.Counter
}

// New registers the detector counters on the provided registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		zoneTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "familyguard_zone_transitions_total",
			Help: "Zone enter/exit events detected, by transition type",
		}, []string{"type"}),
		alertsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "familyguard_alerts_delivered_total",
			Help: "Alerts delivered to live sessions, by alert kind",
		}, []string{"kind"}),
		alertsDeduplicated: factory.NewCounter(prometheus.CounterOpts{
			Name: "familyguard_alerts_deduplicated_total",
			Help: "Zone alerts dropped inside the dedup window",
		}),
		acquisitionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "familyguard_acquisition_failures_total",
			Help: "Location acquisitions that ended in an error",
		}),
		persistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "familyguard_persistence_failures_total",
			Help: "Store writes that failed and were skipped",
		}),
	}
}

// ZoneTransition counts one detected transition of the given type.
func (m *Metrics) ZoneTransition(transitionType string) {
	if m == nil {
		return
	}

	m.zoneTransitions.WithLabelValues(transitionType).Inc()
}

// AlertDelivered counts one alert handed to a session callback.
func (m *Metrics) AlertDelivered(kind string) {
	if m == nil {
		return
	}

	m.alertsDelivered.WithLabelValues(kind).Inc()
}

// AlertDeduplicated counts one alert swallowed by the dedup window.
func (m *Metrics) AlertDeduplicated() {
	if m == nil {
		return
	}

	m.alertsDeduplicated.Inc()
}

// AcquisitionFailure counts one failed location acquisition.
func (m *Metrics) AcquisitionFailure() {
	if m == nil {
		return
	}

	m.acquisitionFailures.Inc()
}

// PersistenceFailure counts one failed store write.
func (m *Metrics) PersistenceFailure() {
	if m == nil {
		return
	}

	m.persistenceFailures.Inc()
}
