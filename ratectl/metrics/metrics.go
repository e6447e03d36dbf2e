// Package metrics exposes controller activity as prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the controller's prometheus instruments.
type Collector struct {
	Outcomes     *prometheus.CounterVec
	RateChanges  *prometheus.CounterVec
	Probes       *prometheus.CounterVec
	LawSwitches  *prometheus.CounterVec
	ActiveLaw    *prometheus.GaugeVec
	RateIndex    *prometheus.GaugeVec
	SuccessRatio prometheus.Gauge
	Folds        prometheus.Counter
}

// NewCollector creates the instruments under namespace and registers them.
// A nil registerer leaves them unregistered.
func NewCollector(namespace string, registerer prometheus.Registerer) *Collector {
	c := &Collector{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Transmission outcomes reported to the controller",
		}, []string{"law", "result"}),

		RateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_changes_total",
			Help:      "Per-destination rate index changes",
		}, []string{"law", "direction"}),

		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "started_total",
			Help:      "A/B probes started",
		}, []string{"trigger"}),

		LawSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "law_switches_total",
			Help:      "Probe verdicts that changed the active law",
		}, []string{"from", "to"}),

		ActiveLaw: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_law",
			Help:      "1 for the law governing ordinary decisions, 0 otherwise",
		}, []string{"law"}),

		RateIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_index",
			Help:      "Current rate index per destination",
		}, []string{"destination"}),

		SuccessRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "regime",
			Name:      "success_ratio",
			Help:      "Most recent folded success ratio",
		}),

		Folds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "regime",
			Name:      "folds_total",
			Help:      "Success-ratio samples folded into the history",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			c.Outcomes,
			c.RateChanges,
			c.Probes,
			c.LawSwitches,
			c.ActiveLaw,
			c.RateIndex,
			c.SuccessRatio,
			c.Folds,
		)
	}
	return c
}

// ObserveOutcome counts one reported outcome under the law that handled it.
func (c *Collector) ObserveOutcome(law string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.Outcomes.WithLabelValues(law, result).Inc()
}

// ObserveRateChange counts a rate change and updates the destination gauge.
func (c *Collector) ObserveRateChange(destination, law string, from, to int) {
	direction := "down"
	if to > from {
		direction = "up"
	}
	c.RateChanges.WithLabelValues(law, direction).Inc()
	c.SetRateIndex(destination, to)
}

// SetRateIndex sets the destination gauge without counting a change.
func (c *Collector) SetRateIndex(destination string, index int) {
	c.RateIndex.WithLabelValues(destination).Set(float64(index))
}

// ObserveProbeStart counts a probe start.
func (c *Collector) ObserveProbeStart(trigger string) {
	c.Probes.WithLabelValues(trigger).Inc()
}

// SetActiveLaw marks law as active and every other law in laws as inactive.
func (c *Collector) SetActiveLaw(law string, laws ...string) {
	for _, l := range laws {
		c.ActiveLaw.WithLabelValues(l).Set(0)
	}
	c.ActiveLaw.WithLabelValues(law).Set(1)
}

// ObserveLawSwitch counts a probe verdict that replaced the active law.
func (c *Collector) ObserveLawSwitch(from, to string) {
	c.LawSwitches.WithLabelValues(from, to).Inc()
}

// ObserveFold records a new success-ratio sample.
func (c *Collector) ObserveFold(ratio float64) {
	c.Folds.Inc()
	c.SuccessRatio.Set(ratio)
}

// ForgetStation drops the gauge series of a removed destination.
func (c *Collector) ForgetStation(destination string) {
	c.RateIndex.DeleteLabelValues(destination)
}
