package train

import "go.uber.org/zap"

// MetricSink receives the namespaced epoch-level metrics
// (train/loss, train/acc, val/loss, val/acc, test/loss, test/acc).
type MetricSink interface {
	Log(name string, value float64, epoch int)
}

// ZapSink writes metrics to a structured logger.
type ZapSink struct {
	Logger *zap.Logger
}

func (s ZapSink) Log(name string, value float64, epoch int) {
	s.Logger.Info("metric",
		zap.String("name", name),
		zap.Float64("value", value),
		zap.Int("epoch", epoch),
	)
}

// MultiSink fans a metric out to several sinks.
type MultiSink []MetricSink

func (m MultiSink) Log(name string, value float64, epoch int) {
	for _, s := range m {
		s.Log(name, value, epoch)
	}
}

// NopSink discards metrics; handy in tests.
type NopSink struct{}

func (NopSink) Log(string, float64, int) {}
