package monitor

import (
	"fmt"
	"net/http"
	"time"
)

type MetricType string

const (
	MetricTypePrometheus MetricType = "PROMETHEUS"
)

type MetricOptions struct {
	MetricType  MetricType
	Environment string
}

// MonitorClient is the interface poked by MonitorService; the prometheus
// client is the only production implementation.
type MonitorClient interface {
	GetMetricType() MetricType
	GetMetricHttpHandler() http.Handler
	MonitorHttpRequestDuration(duration time.Duration, labels HttpRequestLabels)
	MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels)
	MonitorCounters(tag MetricTag, labels map[string]string)
	MonitorDuration(duration time.Duration, tag MetricTag, labels map[string]string)
	MonitorHistogram(value float64, tag MetricTag, labels map[string]string)
}

func GetClient(opts MetricOptions) (MonitorClient, error) {
	switch opts.MetricType {
	case MetricTypePrometheus:
		return NewPrometheusClient()
	default:
		return nil, fmt.Errorf("unknown metric type: %q", opts.MetricType)
	}
}
