package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apkshield/apkshield-go/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var testNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

// makeSelfSignedCert 生成自签名测试证书的 DER 字节
func makeSelfSignedCert(t *testing.T, cn string, notBefore, notAfter time.Time) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

// makeCASignedCert 生成 CA 签发的测试证书
func makeCASignedCert(t *testing.T, cn string) []byte {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(100),
		Subject:               pkix.Name{CommonName: "Test Root CA"},
		NotBefore:             testNow.AddDate(-1, 0, 0),
		NotAfter:              testNow.AddDate(10, 0, 0),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(101),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    testNow.AddDate(-1, 0, 0),
		NotAfter:     testNow.AddDate(5, 0, 0),
	}
	der, err := x509.CreateCertificate(rand.Reader, leafTmpl, caCert, &leafKey.PublicKey, caKey)
	require.NoError(t, err)
	return der
}

// TestAnalyze_Absent 没有签名块
func TestAnalyze_Absent(t *testing.T) {
	a := NewAnalyzer(testLogger())

	info := a.Analyze(nil, testNow)
	assert.True(t, info.Absent)
	assert.False(t, info.Unparseable)
	assert.Empty(t, info.Certificates)
}

// TestAnalyze_Unparseable 签名块字节无法解析
func TestAnalyze_Unparseable(t *testing.T) {
	a := NewAnalyzer(testLogger())

	info := a.Analyze([][]byte{[]byte("garbage signature block")}, testNow)
	assert.False(t, info.Absent)
	assert.True(t, info.Unparseable)
	assert.Empty(t, info.Certificates)
}

// TestAnalyze_SelfSigned 自签名证书识别
func TestAnalyze_SelfSigned(t *testing.T) {
	a := NewAnalyzer(testLogger())
	der := makeSelfSignedCert(t, "Debug Signer", testNow.AddDate(-1, 0, 0), testNow.AddDate(25, 0, 0))

	info := a.Analyze([][]byte{der}, testNow)
	require.Len(t, info.Certificates, 1)
	assert.True(t, info.SelfSignedAny)
	assert.True(t, info.Certificates[0].SelfSigned)
	assert.False(t, info.Expired)
	assert.True(t, info.Valid)
	assert.Len(t, info.Certificates[0].PublicKeyFingerprint, 64)
}

// TestAnalyze_CASigned CA 签发的证书不计自签名
func TestAnalyze_CASigned(t *testing.T) {
	a := NewAnalyzer(testLogger())
	der := makeCASignedCert(t, "Release Signer")

	info := a.Analyze([][]byte{der}, testNow)
	require.Len(t, info.Certificates, 1)
	assert.False(t, info.SelfSignedAny)
	assert.False(t, info.Certificates[0].SelfSigned)
	assert.True(t, info.Valid)
}

// TestAnalyze_Expired 过期只记录，不影响解析有效性
func TestAnalyze_Expired(t *testing.T) {
	a := NewAnalyzer(testLogger())
	der := makeSelfSignedCert(t, "Old Signer", testNow.AddDate(-5, 0, 0), testNow.AddDate(-1, 0, 0))

	info := a.Analyze([][]byte{der}, testNow)
	require.Len(t, info.Certificates, 1)
	assert.True(t, info.Expired)
	assert.False(t, info.Valid)
	assert.False(t, info.Unparseable)
}

// TestAnalyze_MixedBlobs 部分块坏掉时保留可用证书并记录不可解析
func TestAnalyze_MixedBlobs(t *testing.T) {
	a := NewAnalyzer(testLogger())
	good := makeSelfSignedCert(t, "Signer", testNow.AddDate(-1, 0, 0), testNow.AddDate(10, 0, 0))

	info := a.Analyze([][]byte{[]byte("broken"), good}, testNow)
	require.Len(t, info.Certificates, 1)
	assert.True(t, info.Unparseable)
	assert.False(t, info.Valid)
}

// TestIdentityMatch 签名身份比较
func TestIdentityMatch(t *testing.T) {
	a := NewAnalyzer(testLogger())
	der1 := makeSelfSignedCert(t, "Signer A", testNow.AddDate(-1, 0, 0), testNow.AddDate(10, 0, 0))
	der2 := makeSelfSignedCert(t, "Signer B", testNow.AddDate(-1, 0, 0), testNow.AddDate(10, 0, 0))

	info1 := a.Analyze([][]byte{der1}, testNow)
	info1Again := a.Analyze([][]byte{der1}, testNow)
	info2 := a.Analyze([][]byte{der2}, testNow)

	assert.True(t, IdentityMatch(info1, info1Again))
	assert.False(t, IdentityMatch(info1, info2))

	absent := &domain.CertificateInfo{Absent: true}
	assert.False(t, IdentityMatch(info1, absent))
	assert.False(t, IdentityMatch(nil, info1))
	assert.False(t, IdentityMatch(info1, nil))
}
