package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	DeviceFlowsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "gogotex", Subsystem: "deviceflow", Name: "started_total", Help: "Number of device codes requested from the provider."},
	)
	DeviceFlowPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Subsystem: "deviceflow", Name: "polls_total", Help: "Pending-flow sweep results by outcome."},
		[]string{"outcome"},
	)
	DeviceFlowSustainedFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "gogotex", Subsystem: "deviceflow", Name: "poll_failures_sustained_total", Help: "Times a pending flow crossed the consecutive poll failure threshold."},
	)
	DeviceFlowSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "gogotex", Subsystem: "deviceflow", Name: "sweep_duration_seconds", Help: "Duration of one sweep over all pending flows.", Buckets: prometheus.DefBuckets},
	)
	DeviceFlowPending = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "gogotex", Subsystem: "deviceflow", Name: "pending_flows", Help: "Pending flows seen by the last sweep."},
	)
	DeviceFlowLogins = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Subsystem: "deviceflow", Name: "completed_logins_total", Help: "Completion calls by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(DeviceFlowsStarted)
	reg.MustRegister(DeviceFlowPolls)
	reg.MustRegister(DeviceFlowSustainedFailures)
	reg.MustRegister(DeviceFlowSweepDuration)
	reg.MustRegister(DeviceFlowPending)
	reg.MustRegister(DeviceFlowLogins)
}
