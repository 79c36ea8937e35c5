package analyzer

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apkshield/apkshield-go/internal/binxml"
	"github.com/apkshield/apkshield-go/internal/container"
	"github.com/apkshield/apkshield-go/internal/dexscan"
	"github.com/apkshield/apkshield-go/internal/domain"
	"github.com/apkshield/apkshield-go/internal/feature"
	"github.com/apkshield/apkshield-go/internal/scoring"
	"github.com/apkshield/apkshield-go/internal/signing"
)

const manifestEntry = "AndroidManifest.xml"

// Options 分析管线配置
type Options struct {
	MaxEntrySize uint64           // 单个条目解压上限，0 取缺省
	Now          func() time.Time // 证书有效期判定的时间源，nil 取 time.Now
}

// Analyzer 静态分析管线
// 原始字节 → 容器 → {清单, 证书, 字符串扫描} → 特征 → 评分
// 管线对声明的输入是纯的：相同字节加同版本模型产出相同结果
type Analyzer struct {
	logger       *logrus.Logger
	scanner      *dexscan.Scanner
	signer       *signing.Analyzer
	engine       *scoring.Engine
	maxEntrySize uint64
	now          func() time.Time
}

// New 创建分析管线
func New(logger *logrus.Logger, scanner *dexscan.Scanner, engine *scoring.Engine, opts Options) *Analyzer {
	if opts.MaxEntrySize == 0 {
		opts.MaxEntrySize = container.DefaultMaxEntrySize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Analyzer{
		logger:       logger,
		scanner:      scanner,
		signer:       signing.NewAnalyzer(logger),
		engine:       engine,
		maxEntrySize: opts.MaxEntrySize,
		now:          opts.Now,
	}
}

// Analyze 对单个包执行完整分析
// 容器级错误和评分级错误硬失败；清单与证书解析失败降级为
// 带显式标记的部分文档，仍然产出结论
func (a *Analyzer) Analyze(fileName string, data []byte) (*domain.AnalysisResult, error) {
	// 哈希在任何可能失败的解析之前算一次，之后不再重算
	md5sum, sha256sum := hashBytes(data)

	log := a.logger.WithFields(logrus.Fields{
		"file":   fileName,
		"sha256": sha256sum,
	})

	reader, err := container.Open(data, a.maxEntrySize)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}

	manifest, err := a.decodeManifest(reader)
	if err != nil {
		return nil, err
	}
	if manifest.Partial {
		log.Warn("清单不完整，按部分文档降级")
	}

	certs, err := a.analyzeSigning(reader)
	if err != nil {
		return nil, err
	}

	scan, hasNative, err := a.scanStrings(reader, manifest.PackageName)
	if err != nil {
		return nil, err
	}

	fv := feature.Extract(feature.Input{
		Manifest:      manifest,
		Certificates:  certs,
		Scan:          scan,
		FileSize:      int64(len(data)),
		HasNativeCode: hasNative,
	})

	outcome, err := a.engine.Score(fv)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}

	result := &domain.AnalysisResult{
		SHA256:               sha256sum,
		MD5:                  md5sum,
		FileName:             fileName,
		FileSize:             int64(len(data)),
		FileSizeHuman:        humanFileSize(int64(len(data))),
		Verdict:              outcome.Verdict,
		Score:                outcome.Score,
		Probability:          outcome.Probability,
		ExplanationAvailable: outcome.ExplanationAvailable,
		Explanation:          outcome.Explanation,
		Features:             fv,
		Manifest:             manifest,
		Certificates:         certs,
		Findings:             scan.Findings,
		ModelVersion:         outcome.ModelVersion,
	}

	log.WithFields(logrus.Fields{
		"verdict":  result.Verdict,
		"score":    result.Score,
		"findings": len(result.Findings),
	}).Info("分析完成")
	return result, nil
}

// decodeManifest 读取并解码二进制清单
// 条目缺失降级为部分文档；容器读取错误按硬失败上抛
func (a *Analyzer) decodeManifest(reader *container.Reader) (*domain.ManifestDocument, error) {
	if !reader.Has(manifestEntry) {
		return &domain.ManifestDocument{
			InstallLocation: domain.InstallLocationAuto,
			AllowBackup:     true,
			Partial:         true,
		}, nil
	}
	raw, err := reader.ReadEntry(manifestEntry)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	doc, err := binxml.DecodeManifest(raw)
	if err != nil {
		a.logger.WithError(err).Warn("二进制清单解码失败")
	}
	return doc, nil
}

// analyzeSigning 收集 META-INF 下的签名块并解析证书
func (a *Analyzer) analyzeSigning(reader *container.Reader) (*domain.CertificateInfo, error) {
	var blobs [][]byte
	for _, suffix := range []string{".RSA", ".DSA", ".EC"} {
		for _, name := range reader.Match("META-INF/", suffix) {
			blob, err := reader.ReadEntry(name)
			if err != nil {
				return nil, fmt.Errorf("read signing block %s: %w", name, err)
			}
			blobs = append(blobs, blob)
		}
	}
	return a.signer.Analyze(blobs, a.now()), nil
}

// scanStrings 扫描全部 DEX、文本资源和包名，合并为一份扫描结果
// 同时探测原生库存在性
func (a *Analyzer) scanStrings(reader *container.Reader, packageName string) (*dexscan.ScanResult, bool, error) {
	agg := &dexscan.ScanResult{}

	for _, name := range reader.Match("classes", ".dex") {
		data, err := reader.ReadEntry(name)
		if err != nil {
			return nil, false, fmt.Errorf("read %s: %w", name, err)
		}
		res, err := a.scanner.ScanDex(data)
		if err != nil {
			// 损坏的 DEX 只丢失该文件的信号，不中断分析
			a.logger.WithError(err).WithField("entry", name).Warn("DEX 解析失败，跳过")
			continue
		}
		a.scanner.Merge(agg, res)
	}

	if reader.Has("resources.arsc") {
		data, err := reader.ReadEntry("resources.arsc")
		if err != nil {
			return nil, false, fmt.Errorf("read resources.arsc: %w", err)
		}
		a.scanner.Merge(agg, a.scanner.ScanText(data, domain.SourceResources))
	}

	if packageName != "" {
		a.scanner.Merge(agg, a.scanner.ScanPackageName(packageName))
	}

	hasNative := len(reader.Match("lib/", ".so")) > 0
	return agg, hasNative, nil
}

// SHA256Hex 内容哈希（十六进制），用作去重键
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hashBytes 计算 MD5 和 SHA-256（一次遍历，十六进制输出）
func hashBytes(data []byte) (md5sum, sha256sum string) {
	h1 := md5.New()
	h2 := sha256.New()
	w := io.MultiWriter(h1, h2)
	w.Write(data) //nolint:errcheck // 哈希写入不会失败
	return hex.EncodeToString(h1.Sum(nil)), hex.EncodeToString(h2.Sum(nil))
}

// humanFileSize 文件大小的可读表示
func humanFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
