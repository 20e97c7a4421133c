package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shorturl-engine/internal/model"
	"shorturl-engine/internal/service"
)

// ShortURLService 处理器依赖的核心服务
type ShortURLService interface {
	CreateShortURL(ctx context.Context, url string) (*model.ShortURL, error)
	GetRecord(ctx context.Context, code string) (*model.ShortURL, error)
	Resolve(ctx context.Context, code string) (string, error)
	UpdateRecord(ctx context.Context, code, url string) (*model.ShortURL, error)
	DeleteRecord(ctx context.Context, code string) error
	GetStats(ctx context.Context, code string) (*model.ShortURL, error)
	ListAll(ctx context.Context) ([]model.PublicView, error)
	Summary(ctx context.Context) (service.Summary, error)
}

// ReservedPaths 与 /:code 同级的静态路由，不能被分配为短码
var ReservedPaths = []string{"shorten", "all-urls", "health", "stats", "swagger"}

// ShortLinkHandler 处理器
type ShortLinkHandler struct {
	svc    ShortURLService
	logger *zap.SugaredLogger
}

// NewShortLinkHandler 创建处理器实例
func NewShortLinkHandler(svc ShortURLService, logger *zap.SugaredLogger) *ShortLinkHandler {
	return &ShortLinkHandler{svc: svc, logger: logger.Named("handler")}
}

// RegisterRoutes 注册全部业务路由
func (h *ShortLinkHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.HealthCheck)
	router.GET("/stats", h.GetSummary)
	router.GET("/all-urls", h.GetAllLinks)
	router.GET("/:code", h.RedirectToOriginal)

	shorten := router.Group("/shorten")
	{
		shorten.POST("", h.CreateShortLink)
		shorten.GET("/:code", h.GetShortLink)
		shorten.PUT("/:code", h.UpdateShortLink)
		shorten.DELETE("/:code", h.DeleteShortLink)
		shorten.GET("/:code/stats", h.GetLinkStats)
	}
}

// ShortLinkRequest 创建或更新短链接的请求体
type ShortLinkRequest struct {
	URL string `json:"url" binding:"required" example:"https://github.com/gin-gonic/gin"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error" example:"Short URL not found"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthCheck godoc
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *ShortLinkHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// CreateShortLink godoc
// @Summary 创建短链接
// @Description 为一个 http/https 长链接分配短码
// @Tags ShortLink
// @Accept json
// @Produce json
// @Param request body ShortLinkRequest true "长链接 URL"
// @Success 201 {object} model.PublicView
// @Failure 400 {object} ErrorResponse "请求无效"
// @Failure 503 {object} ErrorResponse "短码空间耗尽或存储不可用"
// @Router /shorten [post]
func (h *ShortLinkHandler) CreateShortLink(c *gin.Context) {
	var req ShortLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "URL is required"})
		return
	}

	rec, err := h.svc.CreateShortURL(c.Request.Context(), req.URL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec.ToPublicView())
}

// GetShortLink godoc
// @Summary 查询短链接
// @Description 返回记录但不增加访问次数
// @Tags ShortLink
// @Produce json
// @Param code path string true "短码"
// @Success 200 {object} model.PublicView
// @Failure 404 {object} ErrorResponse
// @Router /shorten/{code} [get]
func (h *ShortLinkHandler) GetShortLink(c *gin.Context) {
	rec, err := h.svc.GetRecord(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec.ToPublicView())
}

// UpdateShortLink godoc
// @Summary 更新短链接
// @Description 替换目标地址，访问次数保持不变
// @Tags ShortLink
// @Accept json
// @Produce json
// @Param code path string true "短码"
// @Param request body ShortLinkRequest true "新的长链接 URL"
// @Success 200 {object} model.PublicView
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /shorten/{code} [put]
func (h *ShortLinkHandler) UpdateShortLink(c *gin.Context) {
	var req ShortLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// 短码不存在时优先返回 404
		if _, err := h.svc.GetRecord(c.Request.Context(), c.Param("code")); err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "URL is required"})
		return
	}

	rec, err := h.svc.UpdateRecord(c.Request.Context(), c.Param("code"), req.URL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec.ToPublicView())
}

// DeleteShortLink godoc
// @Summary 删除短链接
// @Tags ShortLink
// @Param code path string true "短码"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /shorten/{code} [delete]
func (h *ShortLinkHandler) DeleteShortLink(c *gin.Context) {
	if err := h.svc.DeleteRecord(c.Request.Context(), c.Param("code")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetLinkStats godoc
// @Summary 短链接统计
// @Tags Stats
// @Produce json
// @Param code path string true "短码"
// @Success 200 {object} model.PublicView
// @Failure 404 {object} ErrorResponse
// @Router /shorten/{code}/stats [get]
func (h *ShortLinkHandler) GetLinkStats(c *gin.Context) {
	rec, err := h.svc.GetStats(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec.ToPublicView())
}

// GetAllLinks godoc
// @Summary 列出全部短链接
// @Tags Stats
// @Produce json
// @Success 200 {array} model.PublicView
// @Router /all-urls [get]
func (h *ShortLinkHandler) GetAllLinks(c *gin.Context) {
	views, err := h.svc.ListAll(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// GetSummary godoc
// @Summary 全局统计
// @Tags Stats
// @Produce json
// @Success 200 {object} service.Summary
// @Router /stats [get]
func (h *ShortLinkHandler) GetSummary(c *gin.Context) {
	summary, err := h.svc.Summary(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RedirectToOriginal godoc
// @Summary 跳转到原始链接
// @Description 访问次数加一后 302 跳转
// @Tags ShortLink
// @Param code path string true "短码"
// @Success 302
// @Failure 404 {object} ErrorResponse
// @Router /{code} [get]
func (h *ShortLinkHandler) RedirectToOriginal(c *gin.Context) {
	url, err := h.svc.Resolve(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

// writeError 将领域错误映射为 HTTP 状态码
func (h *ShortLinkHandler) writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, model.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid URL format"})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Short URL not found"})
	case errors.Is(err, model.ErrExhaustedKeyspace):
		h.logger.Errorf("短码空间耗尽: %v", err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Short code space exhausted, try again later"})
	case errors.Is(err, model.ErrStoreUnavailable):
		h.logger.Errorf("存储不可用: %v", err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Storage temporarily unavailable"})
	default:
		h.logger.Errorf("未知错误: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}
