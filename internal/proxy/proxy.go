package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/bifrost/internal/circuitbreaker"
	"github.com/vyrodovalexey/bifrost/internal/observability"
	"github.com/vyrodovalexey/bifrost/internal/router"
)

var tracer = otel.Tracer("bifrost/proxy")

// DefaultTimeout bounds backend calls of routes without a timeout.
const DefaultTimeout = 30 * time.Second

// ErrorHandler writes the client response for a failed forward. It is not
// called when the client itself went away.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err *ProxyError)

// Forwarder relays requests to route backends.
type Forwarder struct {
	logger         observability.Logger
	transport      http.RoundTripper
	breakers       *circuitbreaker.Registry
	errorHandler   ErrorHandler
	flushInterval  time.Duration
	defaultTimeout time.Duration
}

// Option is a functional option for configuring the forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithTransport sets the transport used for backend calls.
func WithTransport(transport http.RoundTripper) Option {
	return func(f *Forwarder) {
		f.transport = transport
	}
}

// WithBreakers guards each route with a breaker from the registry.
func WithBreakers(registry *circuitbreaker.Registry) Option {
	return func(f *Forwarder) {
		f.breakers = registry
	}
}

// WithErrorHandler sets the error handler.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(f *Forwarder) {
		f.errorHandler = handler
	}
}

// NewForwarder creates a new forwarder.
func NewForwarder(opts ...Option) *Forwarder {
	f := &Forwarder{
		logger:         observability.NopLogger(),
		flushInterval:  -1, // Immediate flush
		defaultTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.transport == nil {
		f.transport = NewTransport()
	}
	if f.errorHandler == nil {
		f.errorHandler = defaultErrorHandler
	}
	return f
}

// NewTransport returns the default backend transport.
func NewTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 32
	t.ResponseHeaderTimeout = 0
	return t
}

// Forward relays r to rule's backend and writes the backend response, or
// an error response, to w.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, rule *router.RouteRule) {
	start := time.Now()
	target := rule.Target.String()

	ctx, span := tracer.Start(r.Context(), "proxy.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("route.name", rule.Name),
			attribute.String("http.request.method", r.Method),
			attribute.String("server.address", rule.Target.Host),
		),
	)
	defer span.End()

	timeout := rule.Timeout
	if timeout <= 0 {
		timeout = f.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	r = r.WithContext(ctx)

	rec := &responseRecorder{ResponseWriter: w}
	var forwardErr error

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			f.rewrite(pr, rule)
		},
		Transport:     f.transport,
		FlushInterval: f.flushInterval,
		ErrorHandler: func(_ http.ResponseWriter, req *http.Request, err error) {
			forwardErr = classifyError(req, err)
		},
	}

	var breaker *circuitbreaker.Breaker
	if f.breakers != nil {
		breaker = f.breakers.GetOrCreate(rule.Name)
	}

	err := breaker.Execute(func() error {
		rp.ServeHTTP(rec, r)
		if errors.Is(forwardErr, ErrClientGone) || errors.Is(forwardErr, ErrRequestTooLarge) {
			// Says nothing about backend health.
			return nil
		}
		if forwardErr != nil {
			return forwardErr
		}
		if rec.status >= http.StatusInternalServerError {
			return errUpstreamStatus
		}
		return nil
	})
	if circuitbreaker.IsOpen(err) {
		forwardErr = errors.Join(ErrCircuitOpen, err)
	}

	m := getProxyMetrics()
	m.backendDuration.WithLabelValues(rule.Name).Observe(time.Since(start).Seconds())

	if forwardErr == nil {
		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
		return
	}

	proxyErr := NewProxyError("forward", rule.Name, target, forwardErr)
	m.errorsTotal.WithLabelValues(rule.Name, proxyErr.Kind()).Inc()
	span.RecordError(proxyErr)
	span.SetStatus(codes.Error, proxyErr.Kind())

	if errors.Is(forwardErr, ErrClientGone) {
		f.logger.WithContext(ctx).Debug("client canceled forwarded request",
			observability.String("route", rule.Name),
		)
		return
	}

	if errors.Is(forwardErr, ErrRequestTooLarge) {
		f.logger.WithContext(ctx).Debug("request body exceeded limit",
			observability.String("route", rule.Name),
		)
		if !rec.wroteHeader {
			f.errorHandler(w, r, proxyErr)
		}
		return
	}

	f.logger.WithContext(ctx).Warn("forward failed",
		observability.String("route", rule.Name),
		observability.String("target", target),
		observability.String("kind", proxyErr.Kind()),
		observability.Error(forwardErr),
	)

	if !rec.wroteHeader {
		f.errorHandler(w, r, proxyErr)
	}
}

// rewrite points the outbound request at the backend with the route
// prefix stripped from the path.
func (f *Forwarder) rewrite(pr *httputil.ProxyRequest, rule *router.RouteRule) {
	in := pr.In

	pr.Out.URL.Path = router.StripPrefix(rule, in.URL.Path)
	pr.Out.URL.RawPath = ""
	if in.URL.RawPath != "" {
		if raw, ok := strings.CutPrefix(in.URL.RawPath, rule.Prefix); ok && rule.Prefix != "/" {
			if raw == "" {
				raw = "/"
			}
			pr.Out.URL.RawPath = raw
		}
	}

	// Targets are joined with the stripped path and the Host header is
	// rewritten to the target's host.
	pr.SetURL(rule.Target)

	// Keep the client's forwarding chain; SetXForwarded appends to it.
	if prior, ok := in.Header["X-Forwarded-For"]; ok {
		pr.Out.Header["X-Forwarded-For"] = append([]string(nil), prior...)
	}
	pr.SetXForwarded()

	if ct := in.Header.Get("Content-Type"); ct != "" && hasBody(in) {
		pr.Out.Header.Set("Content-Type", ct)
	}

	observability.InjectTraceContext(pr.Out.Context(), pr.Out)
}

func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && (r.ContentLength != 0 || len(r.TransferEncoding) > 0)
}

func classifyError(r *http.Request, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errors.Join(ErrRequestTooLarge, err)
	}

	ctxErr := r.Context().Err()
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrUpstreamTimeout, err)
	case errors.Is(ctxErr, context.Canceled), errors.Is(err, context.Canceled):
		return errors.Join(ErrClientGone, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(ErrUpstreamTimeout, err)
	}
	return errors.Join(ErrUpstreamUnavailable, err)
}

// defaultErrorHandler writes a minimal JSON error.
func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err *ProxyError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	_, _ = io.WriteString(w, `{"error":"`+http.StatusText(err.Status())+`","message":"upstream request failed"}`)
}

// responseRecorder remembers the status written by the reverse proxy.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer for
// flushing.
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
