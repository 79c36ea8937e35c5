package feature

import (
	"strings"

	"github.com/apkshield/apkshield-go/internal/dexscan"
	"github.com/apkshield/apkshield-go/internal/domain"
)

// Input 特征抽取的全部输入
// 抽取是纯函数：相同输入必然产出相同向量
type Input struct {
	Manifest      *domain.ManifestDocument
	Certificates  *domain.CertificateInfo
	Scan          *dexscan.ScanResult
	FileSize      int64
	HasNativeCode bool
}

// Extract 将各解析阶段的产出聚合为固定形状的特征向量
// 缺失的输入段不按数值零处理：对应的 *_unparseable / *_absent
// 指示特征置 1，让模型显式看到"未知"而不是被静默拉向安全侧
func Extract(in Input) *domain.FeatureVector {
	fv := &domain.FeatureVector{
		SchemaVersion: SchemaVersion,
		Names:         Names(),
		Values:        make(map[string]float64, len(schemaNames)),
	}
	for _, name := range schemaNames {
		fv.Values[name] = 0
	}

	extractManifest(fv, in.Manifest)
	extractCertificates(fv, in.Certificates)
	extractScan(fv, in.Scan)

	fv.Values[FeatHasNativeCode] = boolFeature(in.HasNativeCode)
	fv.Values[FeatFileSizeMB] = float64(in.FileSize) / (1024 * 1024)
	return fv
}

func extractManifest(fv *domain.FeatureVector, m *domain.ManifestDocument) {
	if m == nil {
		fv.Values[FeatManifestUnparseable] = 1
		return
	}
	if m.Partial {
		fv.Values[FeatManifestUnparseable] = 1
	}

	total := len(m.Permissions)
	dangerous := 0
	critical := 0
	for _, perm := range m.Permissions {
		if _, ok := dangerousPermissions[perm]; ok {
			dangerous++
		}
		if _, ok := criticalPermissions[perm]; ok {
			critical++
		}
		switch {
		case strings.HasSuffix(perm, ".READ_SMS"):
			fv.Values[FeatHasReadSMS] = 1
		case strings.HasSuffix(perm, ".SEND_SMS"):
			fv.Values[FeatHasSendSMS] = 1
		case strings.HasSuffix(perm, ".RECEIVE_SMS"):
			fv.Values[FeatHasReceiveSMS] = 1
		case strings.HasSuffix(perm, ".SYSTEM_ALERT_WINDOW"):
			fv.Values[FeatHasSystemAlertWindow] = 1
		case strings.HasSuffix(perm, ".BIND_ACCESSIBILITY_SERVICE"):
			fv.Values[FeatHasAccessibilityBind] = 1
		}
	}

	fv.Values[FeatPermissionCount] = float64(total)
	fv.Values[FeatDangerousPermCount] = float64(dangerous)
	fv.Values[FeatCriticalPermCount] = float64(critical)
	// 比例在无权限声明时定义为 0，不产生 NaN
	if total > 0 {
		fv.Values[FeatDangerousPermRatio] = float64(dangerous) / float64(total)
	}

	fv.Values[FeatDebuggable] = boolFeature(m.Debuggable)
	fv.Values[FeatAllowBackup] = boolFeature(m.AllowBackup)
	if m.TargetSDK > 0 && m.TargetSDK < targetSDKFloor {
		fv.Values[FeatTargetSDKOutdated] = 1
	}

	exported := 0
	filters := 0
	for _, list := range [][]domain.Component{m.Activities, m.Services, m.Receivers, m.Providers} {
		for _, c := range list {
			if c.Exported {
				exported++
			}
			filters += len(c.IntentActions)
		}
	}
	fv.Values[FeatExportedComponentCount] = float64(exported)
	fv.Values[FeatIntentFilterCount] = float64(filters)
}

func extractCertificates(fv *domain.FeatureVector, ci *domain.CertificateInfo) {
	if ci == nil {
		fv.Values[FeatCertAbsent] = 1
		return
	}
	fv.Values[FeatCertAbsent] = boolFeature(ci.Absent)
	fv.Values[FeatCertUnparseable] = boolFeature(ci.Unparseable)
	fv.Values[FeatCertSelfSigned] = boolFeature(ci.SelfSignedAny)
	fv.Values[FeatCertExpired] = boolFeature(ci.Expired)
	fv.Values[FeatCertCount] = float64(len(ci.Certificates))
}

func extractScan(fv *domain.FeatureVector, scan *dexscan.ScanResult) {
	if scan == nil {
		return
	}
	for _, f := range scan.Findings {
		switch f.Category {
		case domain.FindingHardcodedIP:
			fv.Values[FeatHardcodedIPCount]++
		case domain.FindingHardcodedURL:
			fv.Values[FeatHardcodedURLCount]++
		case domain.FindingBase64Blob:
			fv.Values[FeatBase64BlobCount]++
		case domain.FindingTorDomain:
			fv.Values[FeatTorDomainCount]++
		case domain.FindingCryptoKeyword:
			fv.Values[FeatCryptoKeywordCount]++
		case domain.FindingBankingKeyword:
			fv.Values[FeatBankingKeywordCount]++
		case domain.FindingBankingCollision:
			fv.Values[FeatBankNameCollision] = 1
		}
	}
	fv.Values[FeatBankNameSimilarity] = scan.BankSimilarity
	fv.Values[FeatObfuscationScore] = scan.Obfuscation
	fv.Values[FeatAvgStringEntropy] = scan.AvgStringEntropy
	fv.Values[FeatURLCount] = float64(scan.URLCount)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
