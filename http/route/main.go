package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-vm-session-service/http/controller"
	middlewares "github.com/tnqbao/gau-vm-session-service/http/middleware"
)

func SetupRouter(ctrl *controller.Controller) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	middles, err := middlewares.NewMiddlewares(ctrl)
	if err != nil {
		panic(err)
	}
	r.Use(middles.CORSMiddleware)

	r.GET("/healthz", ctrl.Healthz)
	if ctrl.Infra.Metrics != nil {
		r.GET("/metrics", gin.WrapH(ctrl.Infra.Metrics.Handler()))
	}

	apiRoutes := r.Group("/api/v1")
	{
		apiRoutes.Use(middles.AuthMiddleware)

		sessionRoutes := apiRoutes.Group("/sessions")
		{
			sessionRoutes.POST("", ctrl.StartSession)
			sessionRoutes.GET("/active", ctrl.GetActiveSession)
			sessionRoutes.GET("/:id", ctrl.GetSession)
			sessionRoutes.POST("/:id/stop", ctrl.StopSession)
			sessionRoutes.POST("/:id/heartbeat", ctrl.Heartbeat)
		}

		adminRoutes := apiRoutes.Group("/admin")
		{
			adminRoutes.Use(middles.AdminMiddleware)
			adminRoutes.POST("/sessions/:id/terminate", ctrl.TerminateSession)
		}
	}
	return r
}
