package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/store-approval/internal/application/dispatcher"
	"github.com/garyjia/store-approval/internal/application/monitor"
	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/internal/domain/event"
)

// Config holds configuration for metrics recording
type Config struct {
	Namespace string
	Registry  *prometheus.Registry
}

// Recorder exposes approval engine metrics
type Recorder struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec
	actions      *prometheus.CounterVec
	refusals     *prometheus.CounterVec
	holds        *prometheus.CounterVec
	scanChecked  prometheus.Counter
	scanTimedOut prometheus.Counter
	scanFailed   prometheus.Counter
	scanDuration prometheus.Histogram
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// NewRecorder creates a recorder. A nil registry gets a fresh one with Go and process collectors.
func NewRecorder(cfg Config) *Recorder {
	if cfg.Namespace == "" {
		cfg.Namespace = "store_approval"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(cfg.Registry)
	ns := cfg.Namespace

	return &Recorder{
		registry: cfg.Registry,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_total",
			Help:      "Domain events emitted by the engine",
		}, []string{"type"}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "actions_total",
			Help:      "Accepted actions by kind",
		}, []string{"action"}),
		refusals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "action_refusals_total",
			Help:      "Refused approval actions by error code",
		}, []string{"action", "code"}),
		holds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "holds_total",
			Help:      "Instances put on hold by reason",
		}, []string{"reason"}),
		scanChecked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "monitor",
			Name:      "checked_total",
			Help:      "Overdue candidates examined by the timeout scan",
		}),
		scanTimedOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "monitor",
			Name:      "timed_out_total",
			Help:      "Instances moved to timeout",
		}),
		scanFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "monitor",
			Name:      "failed_total",
			Help:      "Timeout attempts that returned an error",
		}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "monitor",
			Name:      "scan_duration_seconds",
			Help:      "Time spent in one timeout scan",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the registry metrics are registered with
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handle records one engine event
func (r *Recorder) Handle(_ context.Context, evt *event.Event) error {
	r.events.WithLabelValues(string(evt.Type)).Inc()
	action := evt.GetPayloadString(event.KeyAction)
	if a, ok := impliedActions[evt.Type]; ok {
		action = string(a)
	}
	switch evt.Type {
	case event.TypeActionRefused:
		r.refusals.WithLabelValues(action, evt.GetPayloadString(event.KeyCode)).Inc()
	case event.TypeInstanceHeld:
		r.holds.WithLabelValues(evt.GetPayloadString(event.KeyReason)).Inc()
	default:
		if action != "" {
			r.actions.WithLabelValues(action).Inc()
		}
	}
	return nil
}

// impliedActions names the action behind events that carry no action key
var impliedActions = map[event.Type]entity.Action{
	event.TypeInstanceRejected:  entity.ActionReject,
	event.TypeInstanceCancelled: entity.ActionCancel,
	event.TypeInstanceTimeout:   entity.ActionTimeout,
	event.TypeInstanceReopened:  entity.ActionReopen,
}

// Register subscribes the recorder to every event type
func (r *Recorder) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(dispatcher.AnyType, "metrics", "records engine event metrics", r.Handle)
}

// ObserveScan records the outcome of one timeout scan
func (r *Recorder) ObserveScan(res monitor.ScanResult, elapsed time.Duration) {
	r.scanChecked.Add(float64(res.Checked))
	r.scanTimedOut.Add(float64(res.TimedOut))
	r.scanFailed.Add(float64(res.Failed))
	r.scanDuration.Observe(elapsed.Seconds())
}

// Middleware records request counts and latency by matched route
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
