package controller

import (
	"context"
	"edutest_backend/internal/util"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is implemented by store backends that talk to a server.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	Store  interface{}
	Driver string
}

func NewHealthController(store interface{}, driver string) *HealthController {
	return &HealthController{Store: store, Driver: driver}
}

// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	if p, ok := c.Store.(Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			util.Error(ctx, http.StatusServiceUnavailable, "Store unavailable")
			return
		}
	}

	util.Success(ctx, gin.H{
		"status": "ok",
		"components": gin.H{
			"store":  "up",
			"driver": c.Driver,
		},
	})
}
