package signing

import (
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
)

// PKCS#7 SignedData 的 OID
var oidSignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}

var errNotPKCS7 = errors.New("not a pkcs7 signed-data blob")

// contentInfo PKCS#7 最外层结构
type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

// signedData 只解到证书集合，签名者信息与本域无关
type signedData struct {
	Version          int
	DigestAlgorithms asn1.RawValue `asn1:"set"`
	ContentInfo      asn1.RawValue
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
}

// certificatesFromBlob 从 v1 签名块提取全部证书
// 常规是 PKCS#7 封装，也接受裸 DER 证书流（部分打包器会这么写）
func certificatesFromBlob(blob []byte) ([]*x509.Certificate, error) {
	certs, err := certificatesFromPKCS7(blob)
	if err == nil {
		return certs, nil
	}
	if certs, rawErr := parseRawCertificates(blob); rawErr == nil && len(certs) > 0 {
		return certs, nil
	}
	return nil, err
}

func certificatesFromPKCS7(blob []byte) ([]*x509.Certificate, error) {
	var ci contentInfo
	if _, err := asn1.Unmarshal(blob, &ci); err != nil {
		return nil, fmt.Errorf("%w: %v", errNotPKCS7, err)
	}
	if !ci.ContentType.Equal(oidSignedData) {
		return nil, fmt.Errorf("%w: content type %v", errNotPKCS7, ci.ContentType)
	}

	var sd signedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		return nil, fmt.Errorf("%w: signed data: %v", errNotPKCS7, err)
	}
	if len(sd.Certificates.Bytes) == 0 {
		return nil, fmt.Errorf("%w: no certificates present", errNotPKCS7)
	}

	return parseRawCertificates(sd.Certificates.Bytes)
}

// parseRawCertificates 逐个解析串接的 DER 证书
func parseRawCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for len(rest) > 0 {
		var raw asn1.RawValue
		tail, err := asn1.Unmarshal(rest, &raw)
		if err != nil {
			return nil, fmt.Errorf("certificate structure: %w", err)
		}
		cert, err := x509.ParseCertificate(raw.FullBytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		certs = append(certs, cert)
		rest = tail
	}
	if len(certs) == 0 {
		return nil, errors.New("empty certificate set")
	}
	return certs, nil
}
