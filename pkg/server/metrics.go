package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	slotBuilds  *prometheus.CounterVec
	buildTime   prometheus.Histogram
	priceErrors *prometheus.CounterVec
}

// newMetrics registers the server metrics on reg. Collectors that are already
// registered are reused so several servers can share a registry.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	slotBuilds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chargeplan",
		Name:      "slot_builds_total",
		Help:      "Slot previews built, by result",
	}, []string{"result"})
	buildTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chargeplan",
		Name:      "slot_build_seconds",
		Help:      "Time to load inputs and build a slot preview",
		Buckets:   prometheus.DefBuckets,
	})
	priceErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chargeplan",
		Name:      "price_fetch_errors_total",
		Help:      "Tariff fetch failures that degraded a preview to missing prices",
	}, []string{"provider"})

	if err := reg.Register(slotBuilds); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		slotBuilds = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(buildTime); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		buildTime = are.ExistingCollector.(prometheus.Histogram)
	}
	if err := reg.Register(priceErrors); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		priceErrors = are.ExistingCollector.(*prometheus.CounterVec)
	}

	return &metrics{
		slotBuilds:  slotBuilds,
		buildTime:   buildTime,
		priceErrors: priceErrors,
	}, nil
}

func (m *metrics) observeBuild(result string, started time.Time) {
	if m == nil {
		return
	}
	m.slotBuilds.WithLabelValues(result).Inc()
	m.buildTime.Observe(time.Since(started).Seconds())
}

func (m *metrics) priceFetchFailed(provider string) {
	if m == nil {
		return
	}
	m.priceErrors.WithLabelValues(provider).Inc()
}
