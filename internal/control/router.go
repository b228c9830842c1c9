package control

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouterConfig wires a Workspace and its auth guard into a gin engine.
type RouterConfig struct {
	Workspace   *Workspace
	Auth        *AuthMiddleware
	ServiceName string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", func(c *gin.Context) { c.Status(200) })

	eng := NewEngineHandler(cfg.Workspace)
	clip := NewClipboardHandler(cfg.Workspace)
	hist := NewHistoryHandler(cfg.Workspace)

	api := router.Group("/api")
	api.Use(cfg.Auth.RequireAuth())

	engineGroup := api.Group("/engine")
	{
		engineGroup.POST("/start", eng.Start)
		engineGroup.POST("/stop", eng.Stop)
		engineGroup.POST("/pause", eng.Pause)
		engineGroup.POST("/resume", eng.Resume)
		engineGroup.POST("/step/into", eng.StepInto)
		engineGroup.POST("/step/over", eng.StepOver)
		engineGroup.POST("/step/out", eng.StepOut)
		engineGroup.POST("/step/backward", eng.StepBackward)
		engineGroup.GET("/status", eng.Status)
	}

	api.POST("/selection", clip.SetSelection)
	api.GET("/history", hist.ByStateName)

	clipboardGroup := api.Group("/clipboard")
	{
		clipboardGroup.POST("/copy", clip.Copy)
		clipboardGroup.POST("/cut", clip.Cut)
		clipboardGroup.POST("/paste", clip.Paste)
		clipboardGroup.POST("/group", clip.Group)
		clipboardGroup.POST("/ungroup", clip.Ungroup)
		clipboardGroup.POST("/substitute", clip.Substitute)
	}

	return router
}
