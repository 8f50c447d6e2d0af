package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (ctrl *Controller) Healthz(c *gin.Context) {
	if ctrl.Infra.Postgres != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		sqlDB, err := ctrl.Infra.Postgres.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Health] Postgres ping failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "postgres": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
