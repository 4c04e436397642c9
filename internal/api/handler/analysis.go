package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opensoc/soc_log_server/internal/api/middleware"
	"github.com/opensoc/soc_log_server/internal/model/dto"
	"github.com/opensoc/soc_log_server/internal/pkg/response"
	"github.com/opensoc/soc_log_server/internal/service"
)

type AnalysisHandler struct {
	analysisService *service.AnalysisService
}

func NewAnalysisHandler(analysisService *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
	}
}

// Start 启动批量分析
// POST /api/v1/targets/:id/analysis
func (h *AnalysisHandler) Start(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的目标ID")
		return
	}

	userID, _ := middleware.GetUserID(c)

	var req dto.StartAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.analysisService.Start(c.Request.Context(), targetID, userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidBatchSize),
			errors.Is(err, service.ErrInvalidMaxBatches):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrTargetNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrJobConflict),
			errors.Is(err, service.ErrAlreadyAnalyzed):
			response.ConflictError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "分析任务已创建", resp)
}

// Pause 请求暂停
// POST /api/v1/analysis-jobs/:id/pause
func (h *AnalysisHandler) Pause(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	if err := h.analysisService.Pause(jobID); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, nil)
}

// Resume 恢复暂停的任务
// POST /api/v1/analysis-jobs/:id/resume
func (h *AnalysisHandler) Resume(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	if err := h.analysisService.Resume(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, nil)
}

// Cancel 请求取消
// POST /api/v1/analysis-jobs/:id/cancel
func (h *AnalysisHandler) Cancel(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	if err := h.analysisService.Cancel(jobID); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, nil)
}

// Status 任务状态快照
// GET /api/v1/analysis-jobs/:id
func (h *AnalysisHandler) Status(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	resp, err := h.analysisService.Status(jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, resp)
}

// List 任务历史
// GET /api/v1/analysis-jobs?target_id=&limit=
func (h *AnalysisHandler) List(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Query("target_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的目标ID")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, err := h.analysisService.List(targetID, limit)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, items)
}

// Stats 目标的分析统计
// GET /api/v1/targets/:id/analysis-stats
func (h *AnalysisHandler) Stats(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的目标ID")
		return
	}

	resp, err := h.analysisService.Stats(c.Request.Context(), targetID)
	if err != nil {
		if errors.Is(err, service.ErrTargetNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, resp)
}
