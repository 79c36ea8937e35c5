package dexscan

import (
	"regexp"

	"github.com/apkshield/apkshield-go/internal/domain"
)

// patternRule 单条字符串分类规则，按声明顺序匹配，先中先得
type patternRule struct {
	category domain.FindingCategory
	re       *regexp.Regexp
}

// 分类规则集是固定的：分类结果只取决于输入字符串
var patternRules = []patternRule{
	{domain.FindingTorDomain, regexp.MustCompile(`(?i)[a-z2-7]{16,56}\.onion\b`)},
	{domain.FindingHardcodedIP, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`)},
	{domain.FindingHardcodedIP, regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){4,7}[0-9a-fA-F]{1,4}\b`)},
	{domain.FindingHardcodedURL, regexp.MustCompile(`https?://[^\s'"<>]{4,}`)},
	{domain.FindingCryptoKeyword, regexp.MustCompile(`(?i)\b(bitcoin|btc|monero|xmr|ethereum|wallet\s?address)\b`)},
	{domain.FindingBankingKeyword, regexp.MustCompile(`(?i)\b(bank|banking|iban|swift|cvv|card\s?pin|net\s?banking|upi)\b`)},
	{domain.FindingBase64Blob, regexp.MustCompile(`\b[A-Za-z0-9+/]{48,}={0,2}\b`)},
}

// classify 将提取出的字符串归类为可疑发现，无匹配返回 false
func classify(s string, source domain.FindingSource) (domain.SuspiciousFinding, bool) {
	for _, rule := range patternRules {
		if m := rule.re.FindString(s); m != "" {
			return domain.SuspiciousFinding{
				Category: rule.category,
				Value:    m,
				Source:   source,
			}, true
		}
	}
	return domain.SuspiciousFinding{}, false
}
