package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/config"
)

// ReadinessCheck reports whether a backing dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// MetricsServer serves Prometheus metrics and probes on a separate port.
type MetricsServer struct {
	engine *gin.Engine
	port   int
	log    zerolog.Logger
}

func NewMetricsServer(cfg *config.Config, logger zerolog.Logger, checks map[string]ReadinessCheck) *MetricsServer {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		failing := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failing[name] = err.Error()
			}
		}
		if len(failing) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": failing})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	return &MetricsServer{engine: engine, port: cfg.MetricsPort, log: logger}
}

func (s *MetricsServer) Handler() http.Handler {
	return s.engine
}

func (s *MetricsServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return serve(ctx, srv, s.log.With().Str("server", "metrics").Logger())
}
