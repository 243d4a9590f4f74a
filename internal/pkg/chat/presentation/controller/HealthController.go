package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger is anything the health check should probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthController handles GET /healthz.
type HealthController struct {
	Checks map[string]Pinger
}

func NewHealthController(checks map[string]Pinger) *HealthController {
	return &HealthController{Checks: checks}
}

func (h *HealthController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		results := make(map[string]string, len(h.Checks))
		for name, p := range h.Checks {
			if err := p.Ping(c.Request.Context()); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		state := "OK"
		if status != http.StatusOK {
			state = "DEGRADED"
		}
		c.JSON(status, gin.H{"status": state, "checks": results})
	}
}
