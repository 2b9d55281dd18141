package server

import (
	"TrackHub/internal/device"
	"TrackHub/internal/user"
	"TrackHub/pkg/config"
	"TrackHub/pkg/logger"
	"TrackHub/pkg/middleware"
	"TrackHub/pkg/monitor"
	"TrackHub/pkg/response"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the HTTP API engine: auth endpoints plus the
// jwt-protected device query surface (the pull path for state that is not
// pushed, battery in particular).
func NewRouter(users *user.Handler, devices *device.Handler) *gin.Engine {
	if config.Conf.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	g.Use(logger.GinLogger(), logger.GinRecovery(true))

	// health check
	g.GET("/ping", func(c *gin.Context) {
		response.ReplySuccess(c, "pong")
	})

	g.GET("/metrics", gin.WrapH(monitor.Handler()))

	g.POST("/api/auth/register", users.Register)
	g.POST("/api/auth/login", users.Login)
	g.POST("/api/auth/logout", users.Logout)

	auth := g.Group("/api", middleware.JWTAuthMiddleware())
	{
		auth.GET("/devices", devices.List)
		auth.GET("/devices/:imei", devices.Get)
		auth.GET("/devices/:imei/data", devices.Data)
	}
	return g
}
