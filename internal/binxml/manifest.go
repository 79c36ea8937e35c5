package binxml

import (
	"strings"

	"github.com/apkshield/apkshield-go/internal/domain"
)

// DecodeManifest 将二进制 XML 清单解码为结构化文档
// 解码错误不向上冒泡为分析失败：返回的文档标记 Partial 并带上错误，
// 调用方把"清单不可解析"本身当作风险信号
func DecodeManifest(data []byte) (*domain.ManifestDocument, error) {
	doc := &domain.ManifestDocument{
		InstallLocation: domain.InstallLocationAuto,
		AllowBackup:     true, // Android 默认允许备份
		Permissions:     []string{},
	}

	seen := make(map[string]bool)
	var current *domain.Component
	var currentKind string
	currentExportedSet := false
	inIntentFilter := false

	err := walk(data, func(ev event) bool {
		if !ev.start {
			switch ev.name {
			case "intent-filter":
				inIntentFilter = false
			case "activity", "service", "receiver", "provider":
				if current != nil {
					appendComponent(doc, currentKind, *current)
					current = nil
					inIntentFilter = false
				}
			}
			return true
		}

		switch ev.name {
		case "manifest":
			for _, a := range ev.attrs {
				switch a.name {
				case "package":
					doc.PackageName = a.string()
				case "versionName":
					doc.VersionName = a.string()
				case "versionCode":
					doc.VersionCode = a.int()
				case "installLocation":
					doc.InstallLocation = installLocation(a.int())
				}
			}

		case "uses-sdk":
			for _, a := range ev.attrs {
				switch a.name {
				case "minSdkVersion":
					doc.MinSDK = int(a.int())
				case "targetSdkVersion":
					doc.TargetSDK = int(a.int())
				case "maxSdkVersion":
					doc.MaxSDK = int(a.int())
				}
			}

		case "uses-permission", "uses-permission-sdk-23":
			if name := attrString(ev.attrs, "name"); name != "" {
				normalized := NormalizePermission(name)
				if !seen[normalized] {
					seen[normalized] = true
					doc.Permissions = append(doc.Permissions, normalized)
				}
			}

		case "application":
			for _, a := range ev.attrs {
				switch a.name {
				case "label":
					doc.AppLabel = a.string()
				case "debuggable":
					doc.Debuggable = a.bool()
				case "allowBackup":
					doc.AllowBackup = a.bool()
				}
			}

		case "activity", "service", "receiver", "provider":
			// 前一个组件未正常闭合时先落账
			if current != nil {
				appendComponent(doc, currentKind, *current)
			}
			currentKind = ev.name
			current = &domain.Component{Name: attrString(ev.attrs, "name")}
			currentExportedSet = hasAttr(ev.attrs, "exported")
			for _, a := range ev.attrs {
				if a.name == "exported" {
					current.Exported = a.bool()
				}
			}
			inIntentFilter = false

		case "intent-filter":
			if current != nil {
				inIntentFilter = true
				// 有 intent-filter 且未显式声明 exported 时按导出处理
				if !currentExportedSet {
					current.Exported = true
				}
			}

		case "action":
			if current != nil && inIntentFilter {
				if name := attrString(ev.attrs, "name"); name != "" {
					current.IntentActions = append(current.IntentActions, name)
				}
			}
		}

		return true
	})

	if current != nil {
		appendComponent(doc, currentKind, *current)
	}

	// 缺少包名的清单降级为部分文档，不中断流水线
	if err != nil || doc.PackageName == "" {
		doc.Partial = true
	}
	return doc, err
}

// NormalizePermission 规范化权限字符串
// 无命名空间的短名补全 android.permission. 前缀;
// android.permission 命名空间内统一前缀小写、权限名大写
func NormalizePermission(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if !strings.Contains(name, ".") {
		return "android.permission." + strings.ToUpper(name)
	}
	const androidNS = "android.permission."
	if len(name) > len(androidNS) && strings.EqualFold(name[:len(androidNS)], androidNS) {
		return androidNS + strings.ToUpper(name[len(androidNS):])
	}
	return name
}

// PermissionBase 去掉命名空间的权限短名
func PermissionBase(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

func installLocation(v int64) domain.InstallLocation {
	switch v {
	case 1:
		return domain.InstallLocationInternal
	case 2:
		return domain.InstallLocationPreferExternal
	default:
		return domain.InstallLocationAuto
	}
}

func appendComponent(doc *domain.ManifestDocument, kind string, c domain.Component) {
	switch kind {
	case "activity":
		doc.Activities = append(doc.Activities, c)
	case "service":
		doc.Services = append(doc.Services, c)
	case "receiver":
		doc.Receivers = append(doc.Receivers, c)
	case "provider":
		doc.Providers = append(doc.Providers, c)
	}
}

func attrString(attrs []attribute, name string) string {
	for _, a := range attrs {
		if a.name == name {
			return a.string()
		}
	}
	return ""
}

func hasAttr(attrs []attribute, name string) bool {
	for _, a := range attrs {
		if a.name == name {
			return true
		}
	}
	return false
}
