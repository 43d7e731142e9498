package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vyrodovalexey/bifrost/internal/auth"
	"github.com/vyrodovalexey/bifrost/internal/middleware"
	"github.com/vyrodovalexey/bifrost/internal/observability"
	"github.com/vyrodovalexey/bifrost/internal/proxy"
)

// handle resolves, authorizes and forwards one request.
func (g *Gateway) handle(c *gin.Context) {
	rule, ok := g.routes.Resolve(c.Request.URL.Path)
	if !ok {
		g.abort(c, NewError(KindNotFound, MessageNotFound, nil))
		return
	}
	middleware.SetRoute(c, rule.Name)
	if span := middleware.GetSpan(c); span != nil {
		span.SetAttributes(attribute.Bool("route.requires_auth", rule.RequiresAuth))
	}

	if rule.RequiresAuth {
		creds := auth.Extract(c.Request)
		decision, err := g.authorizer.Authorize(c.Request.Context(), creds.Credential, creds.Tenant)
		if err != nil {
			g.recordAuth(rule.Name, auth.KindOf(err).String(), "")
			g.abort(c, fromAuthError(err))
			return
		}
		g.recordAuth(rule.Name, "allowed", decision.Source)
	}

	g.forwarder.Forward(c.Writer, c.Request, rule)
}

func (g *Gateway) recordAuth(route, outcome, source string) {
	if g.metrics != nil {
		g.metrics.RecordAuthDecision(route, outcome, source)
	}
}

// abort answers err and stops the chain. Internal detail stays in the log.
func (g *Gateway) abort(c *gin.Context, err *Error) {
	logger := g.logger.WithContext(c.Request.Context())
	fields := []observability.Field{
		observability.String("kind", err.Kind.String()),
		observability.Int("status", err.Status()),
		observability.String("path", c.Request.URL.Path),
	}
	if err.Cause != nil {
		fields = append(fields, observability.Error(err.Cause))
		_ = c.Error(err)
	}

	switch err.Kind {
	case KindInternal:
		logger.Error("request failed", fields...)
	case KindUnauthorized:
		if auth.KindOf(err.Cause) == auth.KindUpstreamUnavailable {
			logger.Warn("identity authority unavailable", fields...)
			break
		}
		logger.Debug("request rejected", fields...)
	default:
		logger.Debug("request rejected", fields...)
	}

	middleware.AbortWithError(c, err.Status(), err.Message)
}

// writeProxyError is the forwarder's error handler. The forwarder has
// already logged the failure.
func (g *Gateway) writeProxyError(w http.ResponseWriter, _ *http.Request, perr *proxy.ProxyError) {
	if g.metrics != nil {
		g.metrics.RecordUpstreamError(perr.Route, perr.Kind())
	}

	gwErr := fromProxyError(perr)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(gwErr.Status())
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:   http.StatusText(gwErr.Status()),
		Message: gwErr.Message,
	})
}

// errorBody is the JSON body of every error answered by the gateway.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
