package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Buster/internal/adapters/signal"
	"github.com/dkeye/Buster/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.ContextWSController, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"tabs":   len(ctl.Registry.Tabs()),
		})
	})

	api.GET("/ws/context", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("tab", c.Query("tab")).Str("frame", c.Query("frame")).Msg("ws context endpoint hit")
		ctl.HandleContext(ctx, c)
	})

	return r
}
