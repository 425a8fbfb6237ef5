package monitoring

import (
	"context"
	"net/http"
	"sync"
	"time"

	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

var (
	meterProvider        *sdkmetric.MeterProvider
	requestCounter       metric.Int64Counter
	latencyHist          metric.Float64Histogram
	taskCounter          metric.Int64Counter
	taskLatencyHist      metric.Float64Histogram
	lifecycleCounter     metric.Int64Counter
	directoryCallCounter metric.Int64Counter
	timerFiredCounter    metric.Int64Counter
	initOnce             sync.Once
	httpHandler          http.Handler
)

// Config captures the minimal setup parameters for the service
type Config struct {
	ServiceName   string
	ResourceAttrs map[string]string
}

// Setup configures OpenTelemetry metrics with a Prometheus exporter and
// runtime instrumentation. The returned function shuts the provider down.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "unknown-service"
	}

	var attrs []attribute.KeyValue
	attrs = append(attrs, semconv.ServiceName(cfg.ServiceName))
	for k, v := range cfg.ResourceAttrs {
		attrs = append(attrs, attribute.String(k, v))
	}

	var initErr error

	initOnce.Do(func() {
		exp, err := prometheus.New(prometheus.WithoutUnits())
		if err != nil {
			initErr = err
			return
		}

		res, err := resource.Merge(
			resource.Default(),
			resource.NewSchemaless(attrs...),
		)
		if err != nil {
			initErr = err
			return
		}

		meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exp),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(meterProvider)
		httpHandler = promhttp.Handler()

		meter := meterProvider.Meter(cfg.ServiceName)

		requestCounter, err = meter.Int64Counter(
			"http_requests_total",
			metric.WithDescription("Total number of HTTP requests processed"),
		)
		if err != nil {
			initErr = err
			return
		}

		latencyHist, err = meter.Float64Histogram(
			"http_request_duration_seconds",
			metric.WithDescription("HTTP request duration in seconds"),
		)
		if err != nil {
			initErr = err
			return
		}

		taskCounter, err = meter.Int64Counter(
			"lifecycle_tasks_total",
			metric.WithDescription("Dispatched lifecycle tasks by name and status"),
		)
		if err != nil {
			initErr = err
			return
		}

		taskLatencyHist, err = meter.Float64Histogram(
			"lifecycle_task_duration_seconds",
			metric.WithDescription("Lifecycle task duration in seconds"),
		)
		if err != nil {
			initErr = err
			return
		}

		lifecycleCounter, err = meter.Int64Counter(
			"lifecycle_events_total",
			metric.WithDescription("Entity and invitation lifecycle events by outcome"),
		)
		if err != nil {
			initErr = err
			return
		}

		directoryCallCounter, err = meter.Int64Counter(
			"identity_directory_calls_total",
			metric.WithDescription("Calls to the identity directory by operation and outcome"),
		)
		if err != nil {
			initErr = err
			return
		}

		timerFiredCounter, err = meter.Int64Counter(
			"timers_fired_total",
			metric.WithDescription("One-shot timers fired by the worker"),
		)
		if err != nil {
			initErr = err
			return
		}

		_ = runtime.Start(
			runtime.WithMinimumReadMemStatsInterval(10*time.Second),
			runtime.WithMeterProvider(meterProvider),
		)
	})

	if initErr != nil {
		return nil, initErr
	}

	return func(ctx context.Context) error {
		if meterProvider != nil {
			return meterProvider.Shutdown(ctx)
		}
		return nil
	}, nil
}

// Handler returns the Prometheus /metrics handler
func Handler() http.Handler {
	if httpHandler != nil {
		return httpHandler
	}
	return http.NotFoundHandler()
}

// HTTPMetricsMiddleware records request counts and latency
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestCounter == nil || latencyHist == nil {
			next.ServeHTTP(w, r)
			return
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
			attribute.Int("http.status_code", recorder.status),
		}
		requestCounter.Add(r.Context(), 1, metric.WithAttributes(attrs...))
		latencyHist.Record(r.Context(), time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(statusCode int) {
	s.status = statusCode
	s.ResponseWriter.WriteHeader(statusCode)
}

// RecordTask tracks one dispatched lifecycle task
func RecordTask(ctx context.Context, task string, status int, duration time.Duration) {
	if taskCounter == nil || taskLatencyHist == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("task", task),
		attribute.Int("status", status),
	)
	taskCounter.Add(ctx, 1, attrs)
	taskLatencyHist.Record(ctx, duration.Seconds(), attrs)
}

// RecordLifecycleEvent counts a business event such as an issued invitation
// or a demolished entity.
func RecordLifecycleEvent(ctx context.Context, event, outcome string) {
	if lifecycleCounter == nil {
		return
	}
	lifecycleCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("outcome", outcome),
	))
}

// RecordDirectoryCall counts an identity-directory call
func RecordDirectoryCall(ctx context.Context, operation string, err error) {
	if directoryCallCounter == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	directoryCallCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RecordTimerFired counts a fired one-shot timer
func RecordTimerFired(ctx context.Context, task string) {
	if timerFiredCounter == nil {
		return
	}
	timerFiredCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
}
