package domain

import "time"

// Verdict 三级风险结论
type Verdict string

const (
	VerdictSafe       Verdict = "Safe"
	VerdictSuspicious Verdict = "Suspicious"
	VerdictHighRisk   Verdict = "HighRisk"
)

// InstallLocation 安装位置
type InstallLocation string

const (
	InstallLocationAuto           InstallLocation = "auto"
	InstallLocationInternal       InstallLocation = "internal"
	InstallLocationPreferExternal InstallLocation = "preferExternal"
)

// Component 清单中声明的四大组件之一
type Component struct {
	Name          string   `json:"name"`
	Exported      bool     `json:"exported"`
	IntentActions []string `json:"intent_actions,omitempty"`
}

// ManifestDocument 解码后的清单文档
// 解码失败时降级为 Partial 文档，不中断整个分析流程
type ManifestDocument struct {
	PackageName     string          `json:"package_name"`
	AppLabel        string          `json:"app_label,omitempty"`
	VersionName     string          `json:"version_name,omitempty"`
	VersionCode     int64           `json:"version_code,omitempty"`
	MinSDK          int             `json:"min_sdk,omitempty"`
	TargetSDK       int             `json:"target_sdk,omitempty"`
	MaxSDK          int             `json:"max_sdk,omitempty"`
	InstallLocation InstallLocation `json:"install_location"`
	Debuggable      bool            `json:"debuggable"`
	AllowBackup     bool            `json:"allow_backup"`

	// 权限已规范化并去重，保持声明顺序
	Permissions []string `json:"permissions"`

	Activities []Component `json:"activities"`
	Services   []Component `json:"services"`
	Receivers  []Component `json:"receivers"`
	Providers  []Component `json:"providers"`

	// Partial 表示关键字段缺失或二进制 XML 解码失败
	Partial bool `json:"partial"`
}

// CertificateRecord 单个签名证书
type CertificateRecord struct {
	Subject            string    `json:"subject"`
	Issuer             string    `json:"issuer"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
	NotBefore          time.Time `json:"not_before"`
	NotAfter           time.Time `json:"not_after"`
	SelfSigned         bool      `json:"self_signed"`

	// SPKI 的 SHA-256 指纹（十六进制），用于对比两个包的签名身份
	PublicKeyFingerprint string `json:"public_key_fingerprint"`
}

// CertificateInfo 签名块分析结果
// Absent 表示包中没有签名块（本身是强风险信号，不是解析错误）
type CertificateInfo struct {
	Certificates  []CertificateRecord `json:"certificates"`
	Absent        bool                `json:"absent"`
	Unparseable   bool                `json:"unparseable"`
	SelfSignedAny bool                `json:"self_signed_any"`
	Expired       bool                `json:"expired"`
	Valid         bool                `json:"valid"`
}

// FindingCategory 可疑发现分类
type FindingCategory string

const (
	FindingHardcodedIP      FindingCategory = "hardcoded-ip"
	FindingHardcodedURL     FindingCategory = "hardcoded-url"
	FindingBase64Blob       FindingCategory = "base64-blob"
	FindingTorDomain        FindingCategory = "tor-domain"
	FindingCryptoKeyword    FindingCategory = "crypto-keyword"
	FindingBankingKeyword   FindingCategory = "banking-keyword"
	FindingBankingCollision FindingCategory = "banking-keyword-collision"
)

// FindingSource 可疑发现的来源位置
type FindingSource string

const (
	SourceManifest  FindingSource = "manifest"
	SourceStrings   FindingSource = "strings"
	SourceResources FindingSource = "resources"
)

// SuspiciousFinding 单条可疑发现
type SuspiciousFinding struct {
	Category FindingCategory `json:"category"`
	Value    string          `json:"value"`
	Source   FindingSource   `json:"source"`
}

// FeatureVector 固定形状的特征向量
// SchemaVersion 必须与评分模型期望的输入形状匹配，否则评分拒绝执行
type FeatureVector struct {
	SchemaVersion string             `json:"schema_version"`
	Names         []string           `json:"names"`
	Values        map[string]float64 `json:"values"`
}

// Get 按名称读取特征值
func (fv *FeatureVector) Get(name string) (float64, bool) {
	v, ok := fv.Values[name]
	return v, ok
}

// Contribution 单个特征对评分的贡献（解释条目）
type Contribution struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
	Value   float64 `json:"value"`
}

// AnalysisResult 单个包的完整分析结果
// 同样的输入字节加同版本模型必须产出完全相同的结果（确定性）
type AnalysisResult struct {
	SHA256        string `json:"sha256"`
	MD5           string `json:"md5"`
	FileName      string `json:"file_name"`
	FileSize      int64  `json:"file_size"`
	FileSizeHuman string `json:"file_size_human"`

	Verdict     Verdict `json:"verdict"`
	Score       float64 `json:"score"`       // 0-10
	Probability float64 `json:"probability"` // 校准后概率

	// ExplanationAvailable 为 false 时 Explanation 为空，
	// 不回填伪造的重要性数值
	ExplanationAvailable bool           `json:"explanation_available"`
	Explanation          []Contribution `json:"explanation,omitempty"`

	Features     *FeatureVector      `json:"features"`
	Manifest     *ManifestDocument   `json:"manifest"`
	Certificates *CertificateInfo    `json:"certificates"`
	Findings     []SuspiciousFinding `json:"findings"`

	ModelVersion string `json:"model_version"`
}

// StringDiff 两个字符串集合的对称差（稳定排序）
type StringDiff struct {
	OnlyInFirst  []string `json:"only_in_first"`
	OnlyInSecond []string `json:"only_in_second"`
}

// Empty 两侧均无差异
func (d StringDiff) Empty() bool {
	return len(d.OnlyInFirst) == 0 && len(d.OnlyInSecond) == 0
}

// ComparisonResult 两个包的对比结果
// 严格为两次独立分析加一个结构化差异，不产生合成评分
type ComparisonResult struct {
	First  *AnalysisResult `json:"first"`
	Second *AnalysisResult `json:"second"`

	PermissionDiff StringDiff `json:"permission_diff"`
	ActivityDiff   StringDiff `json:"activity_diff"`
	ServiceDiff    StringDiff `json:"service_diff"`
	ReceiverDiff   StringDiff `json:"receiver_diff"`
	ProviderDiff   StringDiff `json:"provider_diff"`

	// CertificateMatch subject+issuer+公钥完全一致
	CertificateMatch bool `json:"certificate_match"`

	// ScoreDelta 第二个减第一个
	ScoreDelta float64 `json:"score_delta"`
}
