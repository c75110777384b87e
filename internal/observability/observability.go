// Package observability wires prometheus counters and otel tracing into the
// HTTP stack.
package observability

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var (
	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total requests by service, endpoint, method, and status.",
		},
		[]string{"service", "endpoint", "method", "status"},
	)
	probeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "device_probe_total",
			Help: "Device reachability probes by result.",
		},
		[]string{"result"},
	)
)

func init() { prometheus.MustRegister(requestCounter, probeCounter) }

// ObserveProbe counts one probe outcome.
func ObserveProbe(reachable bool) {
	result := "unreachable"
	if reachable {
		result = "reachable"
	}
	probeCounter.WithLabelValues(result).Inc()
}

// Telemetry holds what Setup installs globally.
type Telemetry struct {
	Tracer   oteltrace.Tracer
	Metrics  http.Handler
	Service  string
	duration metric.Float64Histogram
	tp       *sdktrace.TracerProvider
	mp       *sdkmetric.MeterProvider
}

// Setup installs the otel propagator, tracer and meter providers. Spans are
// exported over OTLP/HTTP when otlpEndpoint is set.
func Setup(ctx context.Context, serviceName, otlpEndpoint string) (*Telemetry, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, err
	}

	promExporter, err := otelprom.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if ep := strings.TrimSpace(otlpEndpoint); ep != "" {
		exp, err := otlptracehttp.New(ctx, otlpOptions(ep)...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	duration, err := mp.Meter(serviceName).Float64Histogram(
		"http.server.request.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of HTTP server requests."),
	)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Tracer:   tp.Tracer(serviceName),
		Metrics:  promhttp.Handler(),
		Service:  serviceName,
		duration: duration,
		tp:       tp,
		mp:       mp,
	}, nil
}

func otlpOptions(endpoint string) []otlptracehttp.Option {
	if strings.Contains(endpoint, "://") {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
	}
	return []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure()}
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.tp.Shutdown(ctx), t.mp.Shutdown(ctx))
}

// Middleware traces each request, counts it by route pattern and sets the
// Trace-ID response header.
func (t *Telemetry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		method := r.Method
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := t.Tracer.Start(ctx, method+" "+r.URL.Path, oteltrace.WithSpanKind(oteltrace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", method),
			attribute.String("http.target", r.URL.Path),
			attribute.String("service.name", t.Service),
		)
		if rid := middleware.GetReqID(ctx); rid != "" {
			span.SetAttributes(attribute.String("http.request_id", rid))
		}
		if sc := span.SpanContext(); sc.HasTraceID() {
			w.Header().Set("Trace-ID", sc.TraceID().String())
		}

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		endpoint := routePattern(r)
		span.SetName(method + " " + endpoint)
		span.SetAttributes(attribute.String("http.route", endpoint), attribute.Int("http.status_code", rw.status))
		requestCounter.WithLabelValues(t.Service, endpoint, method, strconv.Itoa(rw.status)).Inc()
		t.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("http.route", endpoint),
			attribute.String("http.method", method),
			attribute.Int("http.status_code", rw.status),
		))
	})
}

// routePattern keeps label cardinality bounded by using the matched chi
// route instead of the raw path.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LogStartup reports where spans go.
func LogStartup(otlpEndpoint string) {
	if strings.TrimSpace(otlpEndpoint) == "" {
		slog.Info("tracing enabled without exporter")
		return
	}
	slog.Info("tracing exporting over otlp/http", "endpoint", otlpEndpoint)
}
