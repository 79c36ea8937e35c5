package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/apkshield/apkshield-go/internal/analyzer"
	"github.com/apkshield/apkshield-go/internal/domain"
	"github.com/apkshield/apkshield-go/internal/repository"
	"github.com/apkshield/apkshield-go/internal/retry"
)

// Broadcaster 结果推送接口，由 WebSocket hub 实现
type Broadcaster interface {
	Broadcast(message interface{})
}

// AnalysisService 分析服务接口
type AnalysisService interface {
	// 分析上传的包；force 为 false 时按内容哈希命中缓存直接返回历史结果
	AnalyzeUpload(ctx context.Context, fileName string, data []byte, force bool) (*domain.AnalysisResult, bool, error)

	// 对比两个包
	Compare(ctx context.Context, first, second analyzer.ComparePackage) (*domain.ComparisonResult, error)

	// 历史列表
	History(ctx context.Context, filter repository.RecordFilter) ([]domain.AnalysisRecord, int64, error)

	// 按哈希取完整报告
	GetReport(ctx context.Context, sha256 string) (*domain.AnalysisResult, error)
}

type analysisService struct {
	pipeline    *analyzer.Analyzer
	recordRepo  repository.AnalysisRecordRepository
	broadcaster Broadcaster
	logger      *logrus.Logger
}

// NewAnalysisService 创建分析服务实例；broadcaster 可为 nil
func NewAnalysisService(
	pipeline *analyzer.Analyzer,
	recordRepo repository.AnalysisRecordRepository,
	broadcaster Broadcaster,
	logger *logrus.Logger,
) AnalysisService {
	return &analysisService{
		pipeline:    pipeline,
		recordRepo:  recordRepo,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// AnalyzeUpload 分析上传的包
// 返回值第二项表示结果是否来自历史缓存
func (s *analysisService) AnalyzeUpload(ctx context.Context, fileName string, data []byte, force bool) (*domain.AnalysisResult, bool, error) {
	if !force {
		if cached, ok := s.findCached(ctx, data); ok {
			return cached, true, nil
		}
	}

	result, err := s.pipeline.Analyze(fileName, data)
	if err != nil {
		return nil, false, err
	}

	if err := s.persist(ctx, result); err != nil {
		// 落库失败不吞掉分析结果，只记日志
		s.logger.WithError(err).WithField("sha256", result.SHA256).Error("保存分析记录失败")
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(resultSummary(result))
	}
	return result, false, nil
}

func (s *analysisService) Compare(ctx context.Context, first, second analyzer.ComparePackage) (*domain.ComparisonResult, error) {
	cmp, err := s.pipeline.Compare(first, second)
	if err != nil {
		return nil, fmt.Errorf("对比分析失败: %w", err)
	}
	// 对比的两侧各自落一条历史
	for _, r := range []*domain.AnalysisResult{cmp.First, cmp.Second} {
		if err := s.persist(ctx, r); err != nil {
			s.logger.WithError(err).WithField("sha256", r.SHA256).Error("保存分析记录失败")
		}
	}
	return cmp, nil
}

func (s *analysisService) History(ctx context.Context, filter repository.RecordFilter) ([]domain.AnalysisRecord, int64, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	records, err := s.recordRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("查询历史记录失败: %w", err)
	}
	total, err := s.recordRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("统计历史记录失败: %w", err)
	}
	return records, total, nil
}

func (s *analysisService) GetReport(ctx context.Context, sha256 string) (*domain.AnalysisResult, error) {
	record, err := s.recordRepo.FindBySHA256(ctx, sha256)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("查询报告失败: %w", err)
	}
	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(record.ResultJSON), &result); err != nil {
		return nil, fmt.Errorf("历史报告反序列化失败: %w", err)
	}
	return &result, nil
}

// findCached 查找同内容哈希的历史结果
func (s *analysisService) findCached(ctx context.Context, data []byte) (*domain.AnalysisResult, bool) {
	sha256sum := analyzer.SHA256Hex(data)
	record, err := s.recordRepo.FindBySHA256(ctx, sha256sum)
	if err != nil {
		return nil, false
	}
	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(record.ResultJSON), &result); err != nil {
		s.logger.WithError(err).WithField("sha256", sha256sum).Warn("缓存记录损坏，重新分析")
		return nil, false
	}
	s.logger.WithField("sha256", sha256sum).Info("命中历史记录，跳过重复分析")
	return &result, true
}

// persist 序列化并落库，临时性数据库错误按指数退避重试
func (s *analysisService) persist(ctx context.Context, result *domain.AnalysisResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("序列化分析结果失败: %w", err)
	}

	record := &domain.AnalysisRecord{
		SHA256:       result.SHA256,
		MD5:          result.MD5,
		FileName:     result.FileName,
		FileSize:     result.FileSize,
		Verdict:      string(result.Verdict),
		Score:        result.Score,
		Probability:  result.Probability,
		ModelVersion: result.ModelVersion,
		FindingCount: len(result.Findings),
		ResultJSON:   string(resultJSON),
		CreatedAt:    time.Now().UTC(),
	}
	if m := result.Manifest; m != nil {
		record.PackageName = m.PackageName
		record.AppLabel = m.AppLabel
		record.VersionName = m.VersionName
		record.PermissionCount = len(m.Permissions)
		record.DangerousPermissionCount = dangerousCount(result)
	}

	policy := retry.DefaultPolicy()
	policy.BaseDelay = 200 * time.Millisecond
	policy.Timeout = 10 * time.Second
	policy.Logger = s.logger
	return retry.Do(ctx, policy, "persist_record", func(ctx context.Context) error {
		return s.recordRepo.Upsert(ctx, record)
	})
}

func dangerousCount(result *domain.AnalysisResult) int {
	if result.Features == nil {
		return 0
	}
	v, _ := result.Features.Get("dangerous_permission_count")
	return int(v)
}

// resultSummary WebSocket 推送的轻量摘要
func resultSummary(r *domain.AnalysisResult) map[string]interface{} {
	pkg := ""
	if r.Manifest != nil {
		pkg = r.Manifest.PackageName
	}
	return map[string]interface{}{
		"type":         "analysis_completed",
		"sha256":       r.SHA256,
		"file_name":    r.FileName,
		"package_name": pkg,
		"verdict":      r.Verdict,
		"score":        r.Score,
	}
}
