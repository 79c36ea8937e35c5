package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/apkshield/apkshield-go/internal/domain"
)

// RecordFilter 历史列表查询条件
type RecordFilter struct {
	Verdict string // 精确匹配结论，空为不限
	Search  string // 包名/文件名模糊匹配
	Limit   int
	Offset  int
}

// AnalysisRecordRepository 分析历史 Repository
// 以 SHA-256 为身份键：重复分析同一内容覆盖旧记录
type AnalysisRecordRepository interface {
	Upsert(ctx context.Context, record *domain.AnalysisRecord) error
	FindBySHA256(ctx context.Context, sha256 string) (*domain.AnalysisRecord, error)
	List(ctx context.Context, filter RecordFilter) ([]domain.AnalysisRecord, error)
	Count(ctx context.Context, filter RecordFilter) (int64, error)
}

// analysisRecordRepo 分析历史 Repository 实现
type analysisRecordRepo struct {
	db *gorm.DB
}

// NewAnalysisRecordRepository 创建分析历史 Repository
func NewAnalysisRecordRepository(db *gorm.DB) AnalysisRecordRepository {
	return &analysisRecordRepo{db: db}
}

// Upsert 按 sha256 插入或更新记录
func (r *analysisRecordRepo) Upsert(ctx context.Context, record *domain.AnalysisRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "sha256"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"md5", "file_name", "file_size",
				"package_name", "app_label", "version_name",
				"verdict", "score", "probability", "model_version",
				"permission_count", "dangerous_permission_count", "finding_count",
				"result_json",
			}),
		}).
		Create(record).Error
}

// FindBySHA256 按内容哈希查询单条记录
func (r *analysisRecordRepo) FindBySHA256(ctx context.Context, sha256 string) (*domain.AnalysisRecord, error) {
	var record domain.AnalysisRecord
	err := r.db.WithContext(ctx).Where("sha256 = ?", sha256).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List 分页查询历史记录，新记录在前
func (r *analysisRecordRepo) List(ctx context.Context, filter RecordFilter) ([]domain.AnalysisRecord, error) {
	var records []domain.AnalysisRecord
	err := r.applyFilter(ctx, filter).
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&records).Error
	return records, err
}

// Count 统计满足条件的记录总数
func (r *analysisRecordRepo) Count(ctx context.Context, filter RecordFilter) (int64, error) {
	var count int64
	err := r.applyFilter(ctx, filter).
		Model(&domain.AnalysisRecord{}).
		Count(&count).Error
	return count, err
}

func (r *analysisRecordRepo) applyFilter(ctx context.Context, filter RecordFilter) *gorm.DB {
	q := r.db.WithContext(ctx)
	if filter.Verdict != "" {
		q = q.Where("verdict = ?", filter.Verdict)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("package_name LIKE ? OR file_name LIKE ?", like, like)
	}
	return q
}
