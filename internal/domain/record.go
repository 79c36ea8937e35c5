package domain

import "time"

// AnalysisRecord 分析历史记录表（按内容哈希去重）
// 只保留哈希、摘要字段和结果 JSON，原始包字节不落库
type AnalysisRecord struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	SHA256 string `gorm:"type:varchar(64);uniqueIndex:uk_sha256;not null" json:"sha256"`
	MD5    string `gorm:"type:varchar(32)" json:"md5,omitempty"`

	FileName    string `gorm:"type:varchar(255)" json:"file_name,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
	PackageName string `gorm:"type:varchar(255);index:idx_package_name" json:"package_name,omitempty"`
	AppLabel    string `gorm:"type:varchar(255)" json:"app_label,omitempty"`
	VersionName string `gorm:"type:varchar(50)" json:"version_name,omitempty"`

	Verdict      string  `gorm:"type:varchar(20);index:idx_verdict" json:"verdict"`
	Score        float64 `json:"score"`
	Probability  float64 `json:"probability"`
	ModelVersion string  `gorm:"type:varchar(50)" json:"model_version,omitempty"`

	// 摘要统计（冗余存储，方便列表查询）
	PermissionCount          int `gorm:"default:0" json:"permission_count"`
	DangerousPermissionCount int `gorm:"default:0" json:"dangerous_permission_count"`
	FindingCount             int `gorm:"default:0" json:"finding_count"`

	// 完整 AnalysisResult JSON
	ResultJSON string `gorm:"type:mediumtext" json:"result_json,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_records"
}
