package task

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the scheduler's Prometheus collectors.
type Metrics struct {
	mu sync.Mutex

	submitted  *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	completed  *prometheus.CounterVec
	cancelled  prometheus.Counter
	queueDepth *prometheus.GaugeVec
	running    prometheus.Gauge
	duration   *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// NewMetrics creates the collectors. A nil registerer means the default
// Prometheus registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer: registerer,
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskrelay", Subsystem: "scheduler",
			Name: "tasks_submitted_total", Help: "Tasks admitted to a queue",
		}, []string{"class", "lane"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskrelay", Subsystem: "scheduler",
			Name: "tasks_rejected_total", Help: "Task submissions rejected at admission",
		}, []string{"reason"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskrelay", Subsystem: "scheduler",
			Name: "tasks_completed_total", Help: "Tasks that finished executing, by outcome",
		}, []string{"outcome"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskrelay", Subsystem: "scheduler",
			Name: "tasks_cancelled_total", Help: "Tasks cancelled by quota enforcement or shutdown",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskrelay", Subsystem: "scheduler",
			Name: "queue_depth", Help: "Tasks waiting in each queue lane",
		}, []string{"class", "lane"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskrelay", Subsystem: "scheduler",
			Name: "tasks_running", Help: "Tasks currently executing",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskrelay", Subsystem: "scheduler",
			Name: "task_duration_seconds", Help: "Task execution time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		}, []string{"service"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.submitted, m.rejected, m.completed, m.cancelled,
		m.queueDepth, m.running, m.duration,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) recordSubmitted(t *Task) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(t.class.String(), t.lane.String()).Inc()
}

func (m *Metrics) recordRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) recordCompleted(t *Task, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(t.ServiceName).Observe(elapsed.Seconds())
}

func (m *Metrics) recordCancelled() {
	if m == nil {
		return
	}
	m.cancelled.Inc()
}

func (m *Metrics) setRunning(n int) {
	if m == nil {
		return
	}
	m.running.Set(float64(n))
}

func (m *Metrics) setQueueDepth(q *TaskQueue) {
	if m == nil {
		return
	}
	for _, lane := range []Lane{ShortLane, LongLane} {
		m.queueDepth.WithLabelValues(q.class.String(), lane.String()).Set(float64(q.LaneLen(lane)))
	}
}
