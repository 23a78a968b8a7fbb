package metrics

import (
	"time"

	"github.com/saiset-co/sai-trade-client/types"
)

type noopManager struct{}

func NewNoop() types.MetricsManager {
	return noopManager{}
}

func (noopManager) Counter(string, map[string]string) types.Counter {
	return noopMetric{}
}

func (noopManager) Gauge(string, map[string]string) types.Gauge {
	return noopMetric{}
}

func (noopManager) Histogram(string, []float64, map[string]string) types.Histogram {
	return noopMetric{}
}

type noopMetric struct{}

func (noopMetric) Inc() {}
func (noopMetric) Dec() {}
func (noopMetric) Add(float64) {}
func (noopMetric) Set(float64) {}
func (noopMetric) Get() float64 { return 0 }
func (noopMetric) Observe(float64) {}
func (noopMetric) ObserveDuration(time.Time) {}
func (noopMetric) GetCount() uint64 { return 0 }
func (noopMetric) GetSum() float64 { return 0 }
