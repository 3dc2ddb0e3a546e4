package metrics

import (
	dto "github.com/prometheus/client_model/go"
)

// Metric represents a metric observed on a service.
type Metric interface {
	MetricName() string
	ServiceName() string
}

// Counter represents a counter metric.
type Counter struct {
	Name    string
	Service string
	Value   uint64
}

// CounterFromMetric returns a counter value from a Prometheus metric.
func CounterFromMetric(m *dto.Metric) uint64 {
	c := m.Counter
	if c == nil {
		return 0
	}

	return uint64(c.GetValue())
}

// MetricName returns the metric name.
func (c Counter) MetricName() string {
	return c.Name
}

// ServiceName returns the service the metric was observed on.
func (c Counter) ServiceName() string {
	return c.Service
}

// Gauge represents a gauge metric.
type Gauge struct {
	Name    string
	Service string
	Value   float64
}

// GaugeFromMetric returns a gauge value from a Prometheus metric.
func GaugeFromMetric(m *dto.Metric) float64 {
	g := m.Gauge
	if g == nil {
		return 0
	}

	return g.GetValue()
}

// MetricName returns the metric name.
func (g Gauge) MetricName() string {
	return g.Name
}

// ServiceName returns the service the metric was observed on.
func (g Gauge) ServiceName() string {
	return g.Service
}

// Histogram represents a histogram metric.
type Histogram struct {
	Name    string
	Service string
	Sum     float64
	Count   uint64
}

// HistogramFromMetric returns a histogram from a Prometheus metric.
func HistogramFromMetric(m *dto.Metric) *Histogram {
	hist := m.Histogram
	if hist == nil || hist.GetSampleCount() == 0 {
		return nil
	}

	return &Histogram{
		Sum:   hist.GetSampleSum(),
		Count: hist.GetSampleCount(),
	}
}

// MetricName returns the metric name.
func (h Histogram) MetricName() string {
	return h.Name
}

// ServiceName returns the service the metric was observed on.
func (h Histogram) ServiceName() string {
	return h.Service
}

// Parse reduces a Prometheus metric family into the common metric form.
func Parse(service string, family *dto.MetricFamily) []Metric {
	if family == nil || family.Name == nil {
		return nil
	}

	var metrics []Metric
	for _, m := range family.Metric {
		switch family.GetType() {
		case dto.MetricType_COUNTER:
			value := CounterFromMetric(m)
			if value == 0 {
				continue
			}
			metrics = append(metrics, Counter{Name: family.GetName(), Service: service, Value: value})

		case dto.MetricType_GAUGE:
			metrics = append(metrics, Gauge{Name: family.GetName(), Service: service, Value: GaugeFromMetric(m)})

		case dto.MetricType_HISTOGRAM:
			hist := HistogramFromMetric(m)
			if hist == nil {
				continue
			}
			hist.Name = family.GetName()
			hist.Service = service
			metrics = append(metrics, *hist)
		}
	}

	return metrics
}
