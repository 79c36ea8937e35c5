package signing

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"time"

	"github.com/apkshield/apkshield-go/internal/domain"
	"github.com/sirupsen/logrus"
)

// Analyzer 签名块分析器
type Analyzer struct {
	logger *logrus.Logger
}

// NewAnalyzer 创建签名块分析器
func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Analyze 解析一个或多个签名块（META-INF/*.RSA|*.DSA|*.EC）
// 没有签名块标记 Absent，解析失败标记 Unparseable——两者都不是硬错误，
// 而是交给特征提取的风险信号。过期只记录布尔值，不影响解析有效性判定
func (a *Analyzer) Analyze(blobs [][]byte, now time.Time) *domain.CertificateInfo {
	info := &domain.CertificateInfo{}

	if len(blobs) == 0 {
		info.Absent = true
		return info
	}

	var certs []*x509.Certificate
	parseFailed := false
	for _, blob := range blobs {
		parsed, err := certificatesFromBlob(blob)
		if err != nil {
			a.logger.WithError(err).Warn("Failed to parse signing block")
			parseFailed = true
			continue
		}
		certs = append(certs, parsed...)
	}

	if len(certs) == 0 {
		info.Unparseable = true
		return info
	}
	// 部分块解析失败但至少有一个证书可用：保留证书，同时记录不可解析
	info.Unparseable = parseFailed

	expiredAny := false

	for _, cert := range certs {
		selfSigned := bytes.Equal(cert.RawIssuer, cert.RawSubject)
		expired := now.Before(cert.NotBefore) || now.After(cert.NotAfter)

		if selfSigned {
			info.SelfSignedAny = true
		}
		if expired {
			expiredAny = true
		}

		spki := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
		info.Certificates = append(info.Certificates, domain.CertificateRecord{
			Subject:              cert.Subject.String(),
			Issuer:               cert.Issuer.String(),
			SignatureAlgorithm:   cert.SignatureAlgorithm.String(),
			NotBefore:            cert.NotBefore,
			NotAfter:             cert.NotAfter,
			SelfSigned:           selfSigned,
			PublicKeyFingerprint: hex.EncodeToString(spki[:]),
		})
	}

	info.Expired = expiredAny
	info.Valid = !parseFailed && !expiredAny

	a.logger.WithFields(logrus.Fields{
		"certificates":    len(info.Certificates),
		"self_signed_any": info.SelfSignedAny,
		"expired":         info.Expired,
	}).Debug("Signing block analyzed")

	return info
}

// IdentityMatch 判断两组证书的签名身份是否一致
// 身份定义为 subject+issuer+公钥指纹的完整集合相等；任一侧缺失则不匹配
func IdentityMatch(first, second *domain.CertificateInfo) bool {
	if first == nil || second == nil {
		return false
	}
	if first.Absent || second.Absent || len(first.Certificates) == 0 || len(second.Certificates) == 0 {
		return false
	}
	if len(first.Certificates) != len(second.Certificates) {
		return false
	}

	identity := func(c domain.CertificateRecord) string {
		return c.Subject + "\x00" + c.Issuer + "\x00" + c.PublicKeyFingerprint
	}
	set := make(map[string]int, len(first.Certificates))
	for _, c := range first.Certificates {
		set[identity(c)]++
	}
	for _, c := range second.Certificates {
		key := identity(c)
		if set[key] == 0 {
			return false
		}
		set[key]--
	}
	return true
}
