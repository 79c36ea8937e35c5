package dexscan

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/apkshield/apkshield-go/internal/domain"
)

// 扫描参数缺省值
const (
	DefaultMinStringLength = 6
	DefaultMaxFindings     = 200

	// shortIdentifierLen 低于该长度的标识符计入混淆比例
	shortIdentifierLen = 3
)

// ScanResult 字符串与代码扫描的汇总结果
// 同一输入多次扫描产出逐字节一致的结果
type ScanResult struct {
	Findings            []domain.SuspiciousFinding
	Obfuscation         float64 // [0,1] 混淆程度启发式估计
	IdentifierCount     int
	StringCount         int
	AvgIdentifierLength float64
	AvgStringEntropy    float64 // 提取串的平均归一化熵
	URLCount            int
	BankSimilarity      float64
	BankMatch           string
}

// Scanner 对 DEX 和文本资源做字符串提取与模式分类
type Scanner struct {
	logger          *logrus.Logger
	minStringLength int
	maxFindings     int
}

// NewScanner 创建扫描器，参数非法时回落到缺省值
func NewScanner(logger *logrus.Logger, minStringLength, maxFindings int) *Scanner {
	if minStringLength <= 0 {
		minStringLength = DefaultMinStringLength
	}
	if maxFindings <= 0 {
		maxFindings = DefaultMaxFindings
	}
	return &Scanner{
		logger:          logger,
		minStringLength: minStringLength,
		maxFindings:     maxFindings,
	}
}

// ScanDex 解析单个 classes.dex 并分类其字符串表
// 非 DEX 或严重损坏的输入返回错误，调用方按缺失信号降级
func (s *Scanner) ScanDex(data []byte) (*ScanResult, error) {
	sum, err := parseDex(data)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{
		StringCount:     sum.stringCount,
		IdentifierCount: len(sum.identifiers),
	}

	totalLen := 0
	short := 0
	for _, ident := range sum.identifiers {
		totalLen += len(ident)
		if len(ident) <= shortIdentifierLen {
			short++
		}
	}
	if len(sum.identifiers) > 0 {
		result.AvgIdentifierLength = float64(totalLen) / float64(len(sum.identifiers))
		shortRatio := float64(short) / float64(len(sum.identifiers))
		result.Obfuscation = obfuscationScore(shortRatio, result.AvgIdentifierLength)
	}

	seen := make(map[string]struct{})
	entropySum := 0.0
	scanned := 0
	for _, str := range sum.strings {
		if len(str) < s.minStringLength {
			continue
		}
		entropySum += normalizedEntropy(str)
		scanned++
		s.collect(result, str, domain.SourceStrings, seen)
	}
	if scanned > 0 {
		result.AvgStringEntropy = entropySum / float64(scanned)
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"strings":     result.StringCount,
			"identifiers": result.IdentifierCount,
			"findings":    len(result.Findings),
			"obfuscation": result.Obfuscation,
		}).Debug("DEX 扫描完成")
	}
	return result, nil
}

// ScanText 从任意字节流提取可打印 ASCII 串并分类
// 用于资源文件和原生库等非结构化内容
func (s *Scanner) ScanText(data []byte, source domain.FindingSource) *ScanResult {
	result := &ScanResult{}
	seen := make(map[string]struct{})
	for _, str := range printableRuns(data, s.minStringLength) {
		s.collect(result, str, source, seen)
	}
	return result
}

// ScanPackageName 检查包名是否仿冒精选银行包名
// 命中时产出 banking-keyword-collision 发现，来源记 manifest
func (s *Scanner) ScanPackageName(pkg string) *ScanResult {
	result := &ScanResult{}
	similarity, matched, collision := bankCollision(pkg)
	result.BankSimilarity = similarity
	result.BankMatch = matched
	if collision {
		result.Findings = append(result.Findings, domain.SuspiciousFinding{
			Category: domain.FindingBankingCollision,
			Value:    pkg,
			Source:   domain.SourceManifest,
		})
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"package":    pkg,
				"matched":    matched,
				"similarity": similarity,
			}).Warn("包名与银行包名近似")
		}
	}
	return result
}

// Merge 合并另一份扫描结果，发现按 category+value 去重并保持上限
func (s *Scanner) Merge(dst, src *ScanResult) {
	seen := make(map[string]struct{}, len(dst.Findings))
	for _, f := range dst.Findings {
		seen[string(f.Category)+"\x00"+f.Value] = struct{}{}
	}
	for _, f := range src.Findings {
		key := string(f.Category) + "\x00" + f.Value
		if _, ok := seen[key]; ok {
			continue
		}
		if len(dst.Findings) >= s.maxFindings {
			break
		}
		seen[key] = struct{}{}
		dst.Findings = append(dst.Findings, f)
	}

	dst.StringCount += src.StringCount
	dst.IdentifierCount += src.IdentifierCount
	dst.URLCount += src.URLCount
	if src.IdentifierCount > 0 && src.AvgIdentifierLength > 0 {
		// 多个 DEX 时按标识符数加权平均
		prev := dst.IdentifierCount - src.IdentifierCount
		dst.AvgIdentifierLength = (dst.AvgIdentifierLength*float64(prev) +
			src.AvgIdentifierLength*float64(src.IdentifierCount)) / float64(dst.IdentifierCount)
	}
	if src.Obfuscation > dst.Obfuscation {
		dst.Obfuscation = src.Obfuscation
	}
	if src.AvgStringEntropy > dst.AvgStringEntropy {
		dst.AvgStringEntropy = src.AvgStringEntropy
	}
	if src.BankSimilarity > dst.BankSimilarity {
		dst.BankSimilarity = src.BankSimilarity
		dst.BankMatch = src.BankMatch
	}
}

// collect 分类一条字符串并累加到结果，按 category+value 去重
func (s *Scanner) collect(result *ScanResult, str string, source domain.FindingSource, seen map[string]struct{}) {
	finding, ok := classify(str, source)
	if !ok {
		return
	}
	if finding.Category == domain.FindingHardcodedURL {
		result.URLCount++
	}
	key := string(finding.Category) + "\x00" + finding.Value
	if _, dup := seen[key]; dup {
		return
	}
	if len(result.Findings) >= s.maxFindings {
		return
	}
	seen[key] = struct{}{}
	result.Findings = append(result.Findings, finding)
}

// obfuscationScore 混淆程度启发式：
// 短标识符占比为主，平均长度偏离 8 为辅，线性组合后截断到 [0,1]
// 这是工程近似而非标定概率，只作为特征输入
func obfuscationScore(shortRatio, avgLen float64) float64 {
	lengthPenalty := math.Max(0, 1-avgLen/8)
	return clamp01(0.75*shortRatio + 0.25*lengthPenalty)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// printableRuns 提取长度不小于 min 的连续可打印 ASCII 段
func printableRuns(data []byte, min int) []string {
	var runs []string
	start := -1
	for i, b := range data {
		printable := b >= 0x20 && b < 0x7f
		if printable {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= min {
			runs = append(runs, string(data[start:i]))
		}
		start = -1
	}
	if start >= 0 && len(data)-start >= min {
		runs = append(runs, string(data[start:]))
	}
	return runs
}
