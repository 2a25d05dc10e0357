/**
 * @description
 * Prometheus collectors for the verification service.
 */
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the service exports.
type Metrics struct {
	verifications    *prometheus.CounterVec
	balanceLookups   *prometheus.CounterVec
	alerts           *prometheus.CounterVec
	configuredGuilds prometheus.Gauge
	deletedConfigs   prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xeneaguard_verifications_total",
				Help: "Verification requests by terminal outcome",
			},
			[]string{"outcome"},
		),
		balanceLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xeneaguard_balance_lookups_total",
				Help: "Completed balance lookups by detected token kind",
			},
			[]string{"kind"},
		),
		alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xeneaguard_alerts_total",
				Help: "Alert webhook deliveries by result",
			},
			[]string{"result"},
		),
		configuredGuilds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "xeneaguard_configured_guilds",
				Help: "Server configs seen by the last reconciliation run",
			},
		),
		deletedConfigs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "xeneaguard_stale_configs_deleted_total",
				Help: "Server configs removed because the bot left the guild",
			},
		),
	}
}

// ObserveVerification counts a verification request that reached a terminal outcome.
func (m *Metrics) ObserveVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

// ObserveBalanceLookup counts a completed balance lookup.
func (m *Metrics) ObserveBalanceLookup(kind string) {
	if m == nil {
		return
	}
	m.balanceLookups.WithLabelValues(kind).Inc()
}

// ObserveAlert counts an alert delivery attempt.
func (m *Metrics) ObserveAlert(result string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(result).Inc()
}

// SetConfiguredGuilds records how many configs the last reconciliation saw.
func (m *Metrics) SetConfiguredGuilds(n int) {
	if m == nil {
		return
	}
	m.configuredGuilds.Set(float64(n))
}

// AddDeletedConfigs counts configs removed by reconciliation.
func (m *Metrics) AddDeletedConfigs(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deletedConfigs.Add(float64(n))
}
