package api

import (
	"github.com/gin-gonic/gin"

	"github.com/opensoc/soc_log_server/config"
	"github.com/opensoc/soc_log_server/internal/api/handler"
	"github.com/opensoc/soc_log_server/internal/api/middleware"
)

type Router struct {
	analysisHandler *handler.AnalysisHandler
	cfg             *config.Config
}

func NewRouter(analysisHandler *handler.AnalysisHandler, cfg *config.Config) *Router {
	return &Router{
		analysisHandler: analysisHandler,
		cfg:             cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))
	engine.Use(middleware.Identity())

	api := engine.Group("/api/v1")
	{
		// 目标维度
		targets := api.Group("/targets")
		{
			targets.POST("/:id/analysis", r.analysisHandler.Start)
			targets.GET("/:id/analysis-stats", r.analysisHandler.Stats)
		}

		// 任务维度
		jobs := api.Group("/analysis-jobs")
		{
			jobs.GET("", r.analysisHandler.List)
			jobs.GET("/:id", r.analysisHandler.Status)
			jobs.POST("/:id/pause", r.analysisHandler.Pause)
			jobs.POST("/:id/resume", r.analysisHandler.Resume)
			jobs.POST("/:id/cancel", r.analysisHandler.Cancel)
		}
	}

	return engine
}
