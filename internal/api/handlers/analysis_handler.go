package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/apkshield/apkshield-go/internal/analyzer"
	"github.com/apkshield/apkshield-go/internal/container"
	"github.com/apkshield/apkshield-go/internal/middleware"
	"github.com/apkshield/apkshield-go/internal/scoring"
	"github.com/apkshield/apkshield-go/internal/service"
)

// AnalysisHandler 分析接口处理器
type AnalysisHandler struct {
	analysisService service.AnalysisService
	logger          *logrus.Logger
	metrics         *middleware.PrometheusMetrics // 可为 nil
	maxUploadSize   int64                         // 字节
}

// NewAnalysisHandler 创建分析接口处理器实例
func NewAnalysisHandler(analysisService service.AnalysisService, logger *logrus.Logger, metrics *middleware.PrometheusMetrics, maxUploadSize int64) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
		logger:          logger,
		metrics:         metrics,
		maxUploadSize:   maxUploadSize,
	}
}

// Analyze 分析上传的 APK
// POST /api/analyze  multipart 字段: file, force(可选)
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件"})
		return
	}

	data, err := h.readUpload(fileHeader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	force, _ := strconv.ParseBool(c.PostForm("force"))

	start := time.Now()
	result, cached, err := h.analysisService.AnalyzeUpload(c.Request.Context(), fileHeader.Filename, data, force)
	if err != nil {
		h.writeAnalysisError(c, err)
		return
	}

	if h.metrics != nil {
		if cached {
			h.metrics.RecordCacheHit()
		} else {
			h.metrics.RecordAnalysis(result, time.Since(start))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"cached": cached,
		"result": result,
	})
}

// Compare 对比两个 APK
// POST /api/compare  multipart 字段: first, second
func (h *AnalysisHandler) Compare(c *gin.Context) {
	var pkgs [2]analyzer.ComparePackage
	for i, field := range []string{"first", "second"} {
		fileHeader, err := c.FormFile(field)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件: " + field})
			return
		}
		data, err := h.readUpload(fileHeader)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		pkgs[i] = analyzer.ComparePackage{FileName: fileHeader.Filename, Data: data}
	}

	cmp, err := h.analysisService.Compare(c.Request.Context(), pkgs[0], pkgs[1])
	if err != nil {
		h.writeAnalysisError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordComparison()
	}
	c.JSON(http.StatusOK, cmp)
}

func (h *AnalysisHandler) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > h.maxUploadSize {
		return nil, errors.New("文件超出上传大小限制")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.New("读取上传文件失败")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadSize+1))
	if err != nil {
		return nil, errors.New("读取上传文件失败")
	}
	if int64(len(data)) > h.maxUploadSize {
		return nil, errors.New("文件超出上传大小限制")
	}
	return data, nil
}

// writeAnalysisError 错误分类映射到 HTTP 状态
// 容器级错误是客户端问题；评分级错误是服务端问题，绝不降级为假结果
func (h *AnalysisHandler) writeAnalysisError(c *gin.Context, err error) {
	reason := "internal"
	switch {
	case errors.Is(err, container.ErrMalformedContainer),
		errors.Is(err, container.ErrUnsafeEntryPath),
		errors.Is(err, container.ErrEntryTooLarge):
		reason = "container"
	case errors.Is(err, scoring.ErrModelUnavailable), errors.Is(err, scoring.ErrSchemaMismatch):
		reason = "scoring"
	}
	if h.metrics != nil {
		h.metrics.RecordAnalysisFailure(reason)
	}

	switch {
	case errors.Is(err, container.ErrMalformedContainer),
		errors.Is(err, container.ErrUnsafeEntryPath),
		errors.Is(err, container.ErrEntryTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, scoring.ErrModelUnavailable):
		h.logger.WithError(err).Error("评分模型不可用")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "评分模型不可用"})
	case errors.Is(err, scoring.ErrSchemaMismatch):
		h.logger.WithError(err).Error("特征形状与模型不匹配")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "特征形状与模型不匹配"})
	default:
		h.logger.WithError(err).Error("分析失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "分析失败"})
	}
}
