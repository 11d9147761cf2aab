// Package api exposes the orchestrator's control surface over HTTP. The
// dashboard, CLI, and bot clients consume these endpoints; rendering is their
// concern.
package api

import (
	"log"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/helix-markets/agentfleet/src/config"
	"github.com/helix-markets/agentfleet/src/data"
	"github.com/helix-markets/agentfleet/src/orchestrator"
)

// New builds the router. When cfg.JWTSecret is empty the API is open, which
// is only sensible behind a private network.
func New(cfg config.Config, sup *orchestrator.Supervisor, store *data.Store, logger *log.Logger) *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if cfg.CORSOrigins == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = strings.Split(cfg.CORSOrigins, ",")
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	g.Use(cors.New(corsCfg))

	h := &handlers{sup: sup, store: store, log: logger}

	v1 := g.Group("/v1")
	if cfg.JWTSecret != "" {
		v1.Use(JWT([]byte(cfg.JWTSecret)))
	}

	v1.POST("/lifecycle/initialize", h.initialize)
	v1.POST("/lifecycle/autoheal", h.autoHeal)
	v1.POST("/lifecycle/stopall", h.stopAll)
	v1.GET("/health", h.healthAll)

	v1.POST("/agents/:id/activate", h.activate)
	v1.POST("/agents/:id/deactivate", h.deactivate)
	v1.GET("/agents/:id/health", h.health)
	v1.POST("/agents/:id/tick", h.tick)
	v1.GET("/agents/:id/trades", h.trades)

	v1.POST("/approvals/:id/approve", h.approve)
	v1.POST("/approvals/:id/reject", h.reject)

	v1.GET("/vault/max-withdrawable", h.maxWithdrawable)

	return g
}
