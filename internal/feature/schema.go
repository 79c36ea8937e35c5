package feature

// SchemaVersion 特征向量的形状版本
// 评分模型按该版本校验输入形状，不匹配时拒绝评分
const SchemaVersion = "fv-1"

// 特征名常量，全部进入固定顺序的向量
const (
	FeatPermissionCount        = "permission_count"
	FeatDangerousPermCount     = "dangerous_permission_count"
	FeatDangerousPermRatio     = "dangerous_permission_ratio"
	FeatCriticalPermCount      = "critical_permission_count"
	FeatHasReadSMS             = "has_read_sms"
	FeatHasSendSMS             = "has_send_sms"
	FeatHasReceiveSMS          = "has_receive_sms"
	FeatHasSystemAlertWindow   = "has_system_alert_window"
	FeatHasAccessibilityBind   = "has_accessibility_bind"
	FeatManifestUnparseable    = "manifest_unparseable"
	FeatDebuggable             = "debuggable"
	FeatAllowBackup            = "allow_backup"
	FeatTargetSDKOutdated      = "target_sdk_outdated"
	FeatExportedComponentCount = "exported_component_count"
	FeatIntentFilterCount      = "intent_filter_count"
	FeatCertAbsent             = "cert_absent"
	FeatCertUnparseable        = "cert_unparseable"
	FeatCertSelfSigned         = "cert_self_signed"
	FeatCertExpired            = "cert_expired"
	FeatCertCount              = "cert_count"
	FeatHardcodedIPCount       = "hardcoded_ip_count"
	FeatHardcodedURLCount      = "hardcoded_url_count"
	FeatBase64BlobCount        = "base64_blob_count"
	FeatTorDomainCount         = "tor_domain_count"
	FeatCryptoKeywordCount     = "crypto_keyword_count"
	FeatBankingKeywordCount    = "banking_keyword_count"
	FeatBankNameCollision      = "bank_name_collision"
	FeatBankNameSimilarity     = "bank_name_similarity"
	FeatObfuscationScore       = "obfuscation_score"
	FeatAvgStringEntropy       = "avg_string_entropy"
	FeatHasNativeCode          = "has_native_code"
	FeatURLCount               = "url_count"
	FeatFileSizeMB             = "file_size_mb"
)

// schemaNames 特征的规范顺序，序列化和模型权重对齐都依赖它
// 追加新特征必须同时递增 SchemaVersion
var schemaNames = []string{
	FeatPermissionCount,
	FeatDangerousPermCount,
	FeatDangerousPermRatio,
	FeatCriticalPermCount,
	FeatHasReadSMS,
	FeatHasSendSMS,
	FeatHasReceiveSMS,
	FeatHasSystemAlertWindow,
	FeatHasAccessibilityBind,
	FeatManifestUnparseable,
	FeatDebuggable,
	FeatAllowBackup,
	FeatTargetSDKOutdated,
	FeatExportedComponentCount,
	FeatIntentFilterCount,
	FeatCertAbsent,
	FeatCertUnparseable,
	FeatCertSelfSigned,
	FeatCertExpired,
	FeatCertCount,
	FeatHardcodedIPCount,
	FeatHardcodedURLCount,
	FeatBase64BlobCount,
	FeatTorDomainCount,
	FeatCryptoKeywordCount,
	FeatBankingKeywordCount,
	FeatBankNameCollision,
	FeatBankNameSimilarity,
	FeatObfuscationScore,
	FeatAvgStringEntropy,
	FeatHasNativeCode,
	FeatURLCount,
	FeatFileSizeMB,
}

// Names 返回规范顺序特征名的拷贝
func Names() []string {
	out := make([]string, len(schemaNames))
	copy(out, schemaNames)
	return out
}

// targetSDKFloor 低于该目标 SDK 视为过时（运行时权限模型之前）
const targetSDKFloor = 23

// dangerousPermissions 危险级权限：授予后可直接触达用户敏感数据
// 对应 dangerous_permission_ratio 的分子集合
var dangerousPermissions = map[string]struct{}{
	"android.permission.READ_SMS":               {},
	"android.permission.SEND_SMS":               {},
	"android.permission.RECEIVE_SMS":            {},
	"android.permission.RECEIVE_MMS":            {},
	"android.permission.READ_CONTACTS":          {},
	"android.permission.WRITE_CONTACTS":         {},
	"android.permission.READ_CALL_LOG":          {},
	"android.permission.WRITE_CALL_LOG":         {},
	"android.permission.CALL_PHONE":             {},
	"android.permission.ANSWER_PHONE_CALLS":     {},
	"android.permission.PROCESS_OUTGOING_CALLS": {},
	"android.permission.READ_PHONE_STATE":       {},
	"android.permission.READ_PHONE_NUMBERS":     {},
	"android.permission.RECORD_AUDIO":           {},
	"android.permission.CAMERA":                 {},
	"android.permission.ACCESS_FINE_LOCATION":   {},
	"android.permission.ACCESS_COARSE_LOCATION": {},
	"android.permission.READ_EXTERNAL_STORAGE":  {},
	"android.permission.WRITE_EXTERNAL_STORAGE": {},
	"android.permission.READ_CALENDAR":          {},
	"android.permission.WRITE_CALENDAR":         {},
	"android.permission.BODY_SENSORS":           {},
	"android.permission.GET_ACCOUNTS":           {},
}

// criticalPermissions 高危级权限：具备界面劫持或设备接管能力
// 单独计数，不参与危险级比例的分子
var criticalPermissions = map[string]struct{}{
	"android.permission.SYSTEM_ALERT_WINDOW":                {},
	"android.permission.BIND_ACCESSIBILITY_SERVICE":         {},
	"android.permission.BIND_DEVICE_ADMIN":                  {},
	"android.permission.BIND_NOTIFICATION_LISTENER_SERVICE": {},
	"android.permission.REQUEST_INSTALL_PACKAGES":           {},
	"android.permission.WRITE_SETTINGS":                     {},
	"android.permission.PACKAGE_USAGE_STATS":                {},
}
