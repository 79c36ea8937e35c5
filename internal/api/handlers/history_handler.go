package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/apkshield/apkshield-go/internal/repository"
	"github.com/apkshield/apkshield-go/internal/service"
)

// HistoryHandler 历史记录接口处理器
type HistoryHandler struct {
	analysisService service.AnalysisService
	logger          *logrus.Logger
}

// NewHistoryHandler 创建历史记录接口处理器实例
func NewHistoryHandler(analysisService service.AnalysisService, logger *logrus.Logger) *HistoryHandler {
	return &HistoryHandler{
		analysisService: analysisService,
		logger:          logger,
	}
}

// List 历史列表（分页）
// GET /api/history?page=1&page_size=20&verdict=HighRisk&search=bank
func (h *HistoryHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	filter := repository.RecordFilter{
		Verdict: c.Query("verdict"),
		Search:  c.Query("search"),
		Limit:   pageSize,
		Offset:  (page - 1) * pageSize,
	}

	records, total, err := h.analysisService.History(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("查询历史记录失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询历史记录失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records":   records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetReport 按内容哈希取完整报告
// GET /api/reports/:sha256
func (h *HistoryHandler) GetReport(c *gin.Context) {
	sha256 := c.Param("sha256")
	if len(sha256) != 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 SHA-256"})
		return
	}

	result, err := h.analysisService.GetReport(c.Request.Context(), sha256)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "报告不存在"})
			return
		}
		h.logger.WithError(err).Error("查询报告失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询报告失败"})
		return
	}
	c.JSON(http.StatusOK, result)
}
