// Package metrics provides the Prometheus metrics of the controller.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "facegate"

// Metrics contains every controller metric. All methods are safe on a nil receiver
// so components can run without a registry.
type Metrics struct {
	Frames          prometheus.Counter
	Verdicts        *prometheus.CounterVec
	MatchScore      prometheus.Histogram
	TickDuration    prometheus.Histogram
	CameraReopens   prometheus.Counter
	DoorCommands    *prometheus.CounterVec
	LockOpen        prometheus.Gauge
	ReedClosed      prometheus.Gauge
	SerialConnected prometheus.Gauge
	SerialFaults    prometheus.Counter
	TrainingRuns    *prometheus.CounterVec
	ModelClasses    prometheus.Gauge
	ModelSamples    prometheus.Gauge
	MQTTConnected   prometheus.Gauge
	MQTTPublishes   *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them on registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.Frames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_total",
		Help:      "Total number of camera frames processed",
	})
	m.Verdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verdicts_total",
		Help:      "Recognition verdicts by reason",
	}, []string{"reason"})
	m.MatchScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "match_score",
		Help:      "Matcher distance of scored faces (lower is more similar)",
		Buckets:   prometheus.ExponentialBuckets(5, 2, 12),
	})
	m.TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tick_duration_seconds",
		Help:      "Duration of one capture/decide/actuate tick",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
	})
	m.CameraReopens = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "camera_reopens_total",
		Help:      "Capture source reopens after consecutive empty frames",
	})
	m.DoorCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "door_commands_total",
		Help:      "Commands sent to the actuator by command and result",
	}, []string{"command", "result"})
	m.LockOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lock_open",
		Help:      "Lock belief (1 for open, 0 for closed)",
	})
	m.ReedClosed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reed_closed",
		Help:      "Reed sensor state (1 closed, 0 opened, -1 unknown)",
	})
	m.SerialConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "serial_connected",
		Help:      "Serial link status (1 for connected, 0 for disconnected)",
	})
	m.SerialFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "serial_faults_total",
		Help:      "Serial link closures caused by errors",
	})
	m.TrainingRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "training_runs_total",
		Help:      "Training passes by result",
	}, []string{"result"})
	m.ModelClasses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "model_classes",
		Help:      "Number of labels in the active model",
	})
	m.ModelSamples = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "model_samples",
		Help:      "Number of samples the active model was trained on",
	})
	m.MQTTConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mqtt_connected",
		Help:      "MQTT connection status (1 for connected, 0 for disconnected)",
	})
	m.MQTTPublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_publishes_total",
		Help:      "MQTT publishes by result",
	}, []string{"result"})

	m.ReedClosed.Set(-1)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Frames, m.Verdicts, m.MatchScore, m.TickDuration, m.CameraReopens,
		m.DoorCommands, m.LockOpen, m.ReedClosed, m.SerialConnected, m.SerialFaults,
		m.TrainingRuns, m.ModelClasses, m.ModelSamples, m.MQTTConnected, m.MQTTPublishes,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// ObserveTick records one processed tick.
func (m *Metrics) ObserveTick(d time.Duration, frame bool) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(d.Seconds())
	if frame {
		m.Frames.Inc()
	}
}

// ObserveVerdict records a recognition verdict; score is recorded only when scored is true.
func (m *Metrics) ObserveVerdict(reason string, score float64, scored bool) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(reason).Inc()
	if scored {
		m.MatchScore.Observe(score)
	}
}

// IncCameraReopens counts a capture reopen.
func (m *Metrics) IncCameraReopens() {
	if m == nil {
		return
	}
	m.CameraReopens.Inc()
}

// ObserveCommand records a door command and whether the write succeeded.
func (m *Metrics) ObserveCommand(command string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DoorCommands.WithLabelValues(command, result).Inc()
}

// SetLock sets the lock belief gauge.
func (m *Metrics) SetLock(open bool) {
	if m == nil {
		return
	}
	m.LockOpen.Set(boolValue(open))
}

// SetReed sets the reed gauge; known false means unknown.
func (m *Metrics) SetReed(closed, known bool) {
	if m == nil {
		return
	}
	if !known {
		m.ReedClosed.Set(-1)
		return
	}
	m.ReedClosed.Set(boolValue(closed))
}

// SetSerial records a serial link change.
func (m *Metrics) SetSerial(connected bool, fault bool) {
	if m == nil {
		return
	}
	m.SerialConnected.Set(boolValue(connected))
	if fault {
		m.SerialFaults.Inc()
	}
}

// ObserveTraining records a training pass; classes and samples are set on success.
func (m *Metrics) ObserveTraining(result string, classes, samples int) {
	if m == nil {
		return
	}
	m.TrainingRuns.WithLabelValues(result).Inc()
	if result == "ok" {
		m.ModelClasses.Set(float64(classes))
		m.ModelSamples.Set(float64(samples))
	}
}

// SetMQTT records the MQTT connection status.
func (m *Metrics) SetMQTT(connected bool) {
	if m == nil {
		return
	}
	m.MQTTConnected.Set(boolValue(connected))
}

// ObservePublish records an MQTT publish result.
func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.MQTTPublishes.WithLabelValues("error").Inc()
		return
	}
	m.MQTTPublishes.WithLabelValues("ok").Inc()
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
