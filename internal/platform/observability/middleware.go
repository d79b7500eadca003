package observability

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eurocoin-catalog/api/internal/platform/httpx"
	"github.com/eurocoin-catalog/api/internal/platform/requestctx"
)

const cloudLoggingTraceKey = "logging.googleapis.com/trace"

// InjectLoggerMiddleware stores logger on every request context.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLoggerMiddleware writes one structured entry per request once the response is complete.
// The entry carries a Cloud Logging httpRequest object, the trace resource for projectID, the
// matched chi route and any fields annotated on the request context by inner layers.
func RequestLoggerMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, annotations := requestctx.WithAnnotations(r.Context())

			info, _ := requestctx.Trace(ctx)
			if info.ProjectID == "" {
				info.ProjectID = projectID
			}
			fields := []zap.Field{zap.String("request_id", middleware.GetReqID(ctx))}
			if resource := info.LogResource(); resource != "" {
				fields = append(fields, zap.String(cloudLoggingTraceKey, resource))
			}
			logger := requestctx.Logger(ctx).With(fields...)
			ctx = requestctx.WithLogger(ctx, logger)
			r = r.WithContext(ctx)

			recorder := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			panicked := true
			defer func() {
				status := recorder.StatusCode()
				if panicked {
					status = http.StatusInternalServerError
				}
				route := routePattern(r)
				annotateSpan(trace.SpanFromContext(ctx), r.Method, route, status)

				entry := append([]zap.Field{
					zap.String("route", SanitizeRoute(route)),
					zap.Object("httpRequest", httpRequestEntry{
						method:    SanitizeMethod(r.Method),
						url:       requestURL(r),
						status:    status,
						size:      recorder.written,
						latency:   time.Since(start),
						remoteIP:  remoteIP(r),
						userAgent: sanitizeString(r.UserAgent(), 256),
					}),
				}, annotations.Fields()...)

				switch {
				case status >= http.StatusInternalServerError:
					logger.Error("http request", entry...)
				case status >= http.StatusBadRequest:
					logger.Warn("http request", entry...)
				default:
					logger.Info("http request", entry...)
				}
			}()

			next.ServeHTTP(recorder, r)
			panicked = false
		})
	}
}

// RecoveryMiddleware turns a panic into a logged 500 JSON error.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				ctx := r.Context()
				logger := fallback
				if requestctx.HasLogger(ctx) {
					logger = requestctx.Logger(ctx)
				}
				logger.Error("panic recovered",
					zap.String("panic", fmt.Sprint(rec)),
					zap.ByteString("stack", debug.Stack()),
				)
				httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// httpRequestEntry follows the LogEntry.httpRequest layout understood by Cloud Logging.
type httpRequestEntry struct {
	method    string
	url       string
	status    int
	size      int64
	latency   time.Duration
	remoteIP  string
	userAgent string
}

func (e httpRequestEntry) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("requestMethod", e.method)
	enc.AddString("requestUrl", e.url)
	enc.AddInt("status", e.status)
	enc.AddString("responseSize", fmt.Sprint(e.size))
	enc.AddString("latency", fmt.Sprintf("%.6fs", e.latency.Seconds()))
	if e.remoteIP != "" {
		enc.AddString("remoteIp", e.remoteIP)
	}
	if e.userAgent != "" {
		enc.AddString("userAgent", e.userAgent)
	}
	return nil
}

func annotateSpan(span trace.Span, method, route string, status int) {
	if span == nil || !span.IsRecording() {
		return
	}
	span.SetName(SanitizeMethod(method) + " " + SanitizeRoute(route))
	span.SetAttributes(semconv.HTTPResponseStatusCode(status), semconv.HTTPRoute(SanitizeRoute(route)))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.URL != nil && r.URL.Path != "" {
		return r.URL.Path
	}
	return "/"
}

func requestURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	return sanitizeString(r.URL.RequestURI(), 512)
}

func remoteIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return sanitizeString(addr, 64)
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.written += int64(n)
	return n, err
}

// StatusCode is the first status written, or 200 when the handler wrote nothing.
func (s *statusRecorder) StatusCode() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
