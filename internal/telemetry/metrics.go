package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "netconf-relay"

// Metrics holds the relay's metric instruments
type Metrics struct {
	Pushes           metric.Int64Counter
	Runs             metric.Int64Counter
	RunDuration      metric.Float64Histogram
	DeliveryFailures metric.Int64Counter
	FetchFailures    metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Pushes, err = meter.Int64Counter("relay.pushes",
		metric.WithDescription("Push notifications processed, by impact kind"))
	if err != nil {
		return nil, err
	}

	m.Runs, err = meter.Int64Counter("relay.runs",
		metric.WithDescription("Automation runs, by outcome and stage"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("relay.run.duration_seconds",
		metric.WithDescription("Automation run duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.DeliveryFailures, err = meter.Int64Counter("relay.delivery.failures",
		metric.WithDescription("Status reports that could not be delivered"))
	if err != nil {
		return nil, err
	}

	m.FetchFailures, err = meter.Int64Counter("relay.diff.fetch_failures",
		metric.WithDescription("Compare patches that could not be fetched"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
