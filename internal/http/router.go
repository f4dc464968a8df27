// Package httpapi wires the HTTP transport (Gin) to the relay's stores,
// middleware, and route handlers. It centralizes cross-cutting concerns:
// tracing, correlation IDs, structured logging, panic recovery, Prometheus
// metrics, gzip, CORS, per-route body caps, and the three rate-limit
// families.
//
// Middleware order:
//  1. OpenTelemetry (when enabled): trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. gzip (binary download and websocket paths excluded)
//  7. CORS
//
// Body caps and rate limits are per-route, applied where each endpoint is
// mounted.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/blind-relay/internal/config"
	"github.com/tbourn/blind-relay/internal/http/handlers"
	"github.com/tbourn/blind-relay/internal/http/middleware"
)

// banner is the deliberately soft unmatched-route response. Observed clients
// tolerate a 200 text body better than a 404.
const banner = "blind relay"

// RegisterRoutes attaches all middleware and endpoints to the given Gin
// engine. wsHandler performs the websocket handshake and classification; all
// other dependencies arrive through the handlers.API.
func RegisterRoutes(r *gin.Engine, api *handlers.API, wsHandler gin.HandlerFunc, cfg config.Config) {
	// 1) Trace all HTTP requests
	if cfg.OTEL.Enabled {
		r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	}

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Prometheus instrumentation; scrape endpoint lives off the spec
	// surface because GET /metrics is the totals endpoint.
	r.Use(middleware.Metrics())
	r.GET("/internal/prometheus", gin.WrapH(promhttp.Handler()))

	// 6) gzip for the JSON surface. Binary downloads are ciphertext (it does
	// not compress) and websocket upgrades must not be wrapped.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`^/file/.*`, `^/ws`})))

	// 7) Permissive CORS. Force ACAO: * even for requests without an Origin
	// header, then let the cors middleware answer preflights with 204.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Next()
	})
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	// Unmatched routes: 204 for stray OPTIONS, 200 text banner otherwise.
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		c.String(http.StatusOK, banner)
	})

	// Rate-limit families. Buckets are per client IP; families never share
	// counters.
	otmLimit := middleware.NewLimiter(cfg.RateWindow, map[string]int{
		"post": cfg.OTMPostPerWindow,
		"get":  cfg.OTMGetPerWindow,
	})
	fileLimit := middleware.NewLimiter(cfg.RateWindow, map[string]int{
		"upload":   cfg.FileUploadPerWindow,
		"download": cfg.FileDownloadPerWindow,
	})
	chatLimit := middleware.NewLimiter(cfg.RateWindow, map[string]int{
		"invite":  cfg.InvitePerWindow,
		"message": cfg.MessagePerWindow,
	})

	// Liveness and totals
	r.GET("/health", api.Health)
	r.GET("/metrics", api.Metrics)

	// Real-time
	r.GET("/ws", wsHandler)

	// One-time messages
	r.POST("/otm", limitBody(cfg.MaxOTMBody), otmLimit.Handler("post"), api.CreateOTM)
	r.GET("/otm/:id", otmLimit.Handler("get"), api.TakeOTM)

	// One-time files
	r.POST("/file", limitBody(cfg.MaxFileBody), fileLimit.Handler("upload"), api.UploadFile)
	r.GET("/file/:id", fileLimit.Handler("download"), api.DownloadFile)

	// Invites
	r.POST("/chat/invite", limitBody(cfg.MaxInviteBody), chatLimit.Handler("invite"), api.CreateInvite)
	r.GET("/chat/invite/:id", api.GetInvite)
	r.POST("/chat/invite/:id/claim", limitBody(cfg.MaxClaimBody), chatLimit.Handler("invite"), api.ClaimInvite)

	// Mailboxes
	r.POST("/chat/message", limitBody(cfg.MaxMessageBody), chatLimit.Handler("message"), api.PostMessage)
	r.GET("/chat/messages/:fp", api.ListMessages)
	r.POST("/chat/messages/ack", limitBody(cfg.MaxAckBody), api.AckMessages)
}

// limitBody caps the request body size using http.MaxBytesReader; reads past
// the cap terminate the stream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
