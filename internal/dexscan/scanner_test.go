package dexscan

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

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

// buildDex 构造只含头部和字符串表的最小 DEX
func buildDex(t *testing.T, strs []string) []byte {
	t.Helper()

	var data bytes.Buffer
	for range strs {
		data.Write(make([]byte, 4)) // 占位，稍后回填 string_id 偏移
	}

	header := make([]byte, dexHeaderSize)
	copy(header, "dex\n035\x00")

	idsOff := uint32(dexHeaderSize)
	payloadOff := idsOff + uint32(4*len(strs))

	var payload bytes.Buffer
	offsets := make([]uint32, len(strs))
	for i, s := range strs {
		offsets[i] = payloadOff + uint32(payload.Len())
		// ULEB128 UTF-16 长度（测试串都是 ASCII 且 <128）
		payload.WriteByte(byte(len(s)))
		payload.WriteString(s)
		payload.WriteByte(0)
	}

	total := payloadOff + uint32(payload.Len())
	binary.LittleEndian.PutUint32(header[offFileSize:], total)
	binary.LittleEndian.PutUint32(header[offStringIDSize:], uint32(len(strs)))
	binary.LittleEndian.PutUint32(header[offStringIDOff:], idsOff)
	binary.LittleEndian.PutUint32(header[offMethodIDSize:], 10)
	binary.LittleEndian.PutUint32(header[offDataSize:], uint32(payload.Len()))

	out := bytes.NewBuffer(header)
	for _, off := range offsets {
		_ = binary.Write(out, binary.LittleEndian, off)
	}
	out.Write(payload.Bytes())
	return out.Bytes()
}

// TestScanDex_Findings 字符串表分类与计数
func TestScanDex_Findings(t *testing.T) {
	s := NewScanner(testLogger(), 6, 200)
	dex := buildDex(t, []string{
		"Lcom/example/app/MainActivity;",
		"Lcom/example/app/SyncService;",
		"https://command.example.net/gate.php",
		"connect to 203.0.113.7 now",
		"vq3teyfte6lmok2znf3sdlocqt2bcurrmcnis7jh5peexvyzu2wl4oyd.onion",
		"please enter net banking password",
		"send bitcoin to this address",
		"short",
	})

	result, err := s.ScanDex(dex)
	require.NoError(t, err)

	assert.Equal(t, 8, result.StringCount)
	assert.Equal(t, 2, result.IdentifierCount)
	assert.Equal(t, 1, result.URLCount)

	categories := map[domain.FindingCategory]int{}
	for _, f := range result.Findings {
		categories[f.Category]++
		assert.Equal(t, domain.SourceStrings, f.Source)
	}
	assert.Equal(t, 1, categories[domain.FindingHardcodedURL])
	assert.Equal(t, 1, categories[domain.FindingHardcodedIP])
	assert.Equal(t, 1, categories[domain.FindingTorDomain])
	assert.Equal(t, 1, categories[domain.FindingBankingKeyword])
	assert.Equal(t, 1, categories[domain.FindingCryptoKeyword])
}

// TestScanDex_Deterministic 相同输入产出完全一致的结果
func TestScanDex_Deterministic(t *testing.T) {
	s := NewScanner(testLogger(), 6, 200)
	dex := buildDex(t, []string{
		"Lcom/a/b/Thing;",
		"https://example.org/a",
		"https://example.org/b",
	})

	r1, err := s.ScanDex(dex)
	require.NoError(t, err)
	r2, err := s.ScanDex(dex)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

// TestScanDex_Obfuscation 短标识符推高混淆估计
func TestScanDex_Obfuscation(t *testing.T) {
	s := NewScanner(testLogger(), 6, 200)

	obfuscated := buildDex(t, []string{
		"La/a;", "La/b;", "La/c;", "La/d;", "Lb/a;", "Lb/b;",
	})
	plain := buildDex(t, []string{
		"Lcom/example/app/MainActivity;",
		"Lcom/example/app/PaymentFragment;",
		"Lcom/example/app/SettingsRepository;",
	})

	ro, err := s.ScanDex(obfuscated)
	require.NoError(t, err)
	rp, err := s.ScanDex(plain)
	require.NoError(t, err)

	assert.Greater(t, ro.Obfuscation, 0.7)
	assert.Less(t, rp.Obfuscation, 0.3)
	assert.Greater(t, ro.Obfuscation, rp.Obfuscation)
}

// TestScanDex_NotDex 非 DEX 输入报错
func TestScanDex_NotDex(t *testing.T) {
	s := NewScanner(testLogger(), 6, 200)

	_, err := s.ScanDex([]byte("PK\x03\x04 definitely a zip"))
	assert.Error(t, err)

	_, err = s.ScanDex(nil)
	assert.Error(t, err)
}

// TestScanText 从二进制流提取可打印串
func TestScanText(t *testing.T) {
	s := NewScanner(testLogger(), 6, 200)
	blob := append([]byte{0x00, 0x01, 0xff}, []byte("https://res.example.com/cfg")...)
	blob = append(blob, 0x00, 0x7f)
	blob = append(blob, []byte("abc")...) // 低于最小长度

	result := s.ScanText(blob, domain.SourceResources)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, domain.FindingHardcodedURL, result.Findings[0].Category)
	assert.Equal(t, domain.SourceResources, result.Findings[0].Source)
}

// TestScanPackageName 仿冒包名检测
func TestScanPackageName(t *testing.T) {
	s := NewScanner(testLogger(), 6, 200)

	// 挂靠命名：真前缀直接判碰撞
	r := s.ScanPackageName("com.bankofexample.secure")
	assert.GreaterOrEqual(t, r.BankSimilarity, 0.80)
	assert.Equal(t, "com.bankofexample", r.BankMatch)
	require.Len(t, r.Findings, 1)
	assert.Equal(t, domain.FindingBankingCollision, r.Findings[0].Category)
	assert.Equal(t, domain.SourceManifest, r.Findings[0].Source)

	// 恰好等于表内条目是真品，不算碰撞
	r = s.ScanPackageName("com.bankofexample")
	assert.Equal(t, 1.0, r.BankSimilarity)
	assert.Empty(t, r.Findings)

	// 无关包名
	r = s.ScanPackageName("org.mozilla.firefox")
	assert.Less(t, r.BankSimilarity, 0.80)
	assert.Empty(t, r.BankMatch)
	assert.Empty(t, r.Findings)
}

// TestBankCollision_Typosquat 编辑距离一的仿冒包名
func TestBankCollision_Typosquat(t *testing.T) {
	similarity, matched, collision := bankCollision("com.bankofexampel")
	assert.True(t, collision)
	assert.Equal(t, "com.bankofexample", matched)
	assert.GreaterOrEqual(t, similarity, 0.80)

	_, _, collision = bankCollision("")
	assert.False(t, collision)
}

// TestMerge 合并结果的去重、上限与聚合
func TestMerge(t *testing.T) {
	s := NewScanner(testLogger(), 6, 3)

	dst := &ScanResult{
		Findings: []domain.SuspiciousFinding{
			{Category: domain.FindingHardcodedURL, Value: "https://a.example/x", Source: domain.SourceStrings},
		},
		IdentifierCount:     10,
		AvgIdentifierLength: 10,
		Obfuscation:         0.2,
	}
	src := &ScanResult{
		Findings: []domain.SuspiciousFinding{
			{Category: domain.FindingHardcodedURL, Value: "https://a.example/x", Source: domain.SourceStrings}, // 重复
			{Category: domain.FindingHardcodedIP, Value: "10.0.0.1", Source: domain.SourceStrings},
			{Category: domain.FindingTorDomain, Value: "aaaaaaaaaaaaaaaa2222.onion", Source: domain.SourceStrings},
			{Category: domain.FindingBase64Blob, Value: "QUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQQ==", Source: domain.SourceStrings},
		},
		IdentifierCount:     30,
		AvgIdentifierLength: 2,
		Obfuscation:         0.9,
		BankSimilarity:      0.85,
		BankMatch:           "com.bankofexample",
	}

	s.Merge(dst, src)

	// 重复项去掉，上限 3 截断
	assert.Len(t, dst.Findings, 3)
	assert.Equal(t, 40, dst.IdentifierCount)
	// 按标识符数加权：(10*10 + 2*30) / 40
	assert.InDelta(t, 4.0, dst.AvgIdentifierLength, 1e-9)
	assert.Equal(t, 0.9, dst.Obfuscation)
	assert.Equal(t, 0.85, dst.BankSimilarity)
	assert.Equal(t, "com.bankofexample", dst.BankMatch)
}

// TestNormalizedEntropy 归一化熵边界
func TestNormalizedEntropy(t *testing.T) {
	assert.Equal(t, 0.0, normalizedEntropy(""))
	assert.Equal(t, 1.0, normalizedEntropy("x"))
	assert.Equal(t, 0.0, normalizedEntropy("aaaaaa"), "单一字符重复串熵为 0")
	assert.InDelta(t, 1.0, normalizedEntropy("abcdef"), 1e-9, "全不同字符串熵为 1")

	low := normalizedEntropy("aaaaaabbb")
	high := normalizedEntropy("a8Fk2qZw9")
	assert.Greater(t, high, low)
}
