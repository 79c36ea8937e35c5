package service

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/apkshield/apkshield-go/internal/analyzer"
	"github.com/apkshield/apkshield-go/internal/dexscan"
	"github.com/apkshield/apkshield-go/internal/domain"
	"github.com/apkshield/apkshield-go/internal/repository"
	"github.com/apkshield/apkshield-go/internal/scoring"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// captureBroadcaster 记录推送消息的测试替身
type captureBroadcaster struct {
	messages []interface{}
}

func (b *captureBroadcaster) Broadcast(message interface{}) {
	b.messages = append(b.messages, message)
}

func newTestService(t *testing.T, broadcaster Broadcaster) (AnalysisService, repository.AnalysisRecordRepository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.AnalysisRecord{}))
	repo := repository.NewAnalysisRecordRepository(db)

	engine, err := scoring.NewEngine(testLogger(), scoring.Options{})
	require.NoError(t, err)
	scanner := dexscan.NewScanner(testLogger(), 6, 200)
	pipeline := analyzer.New(testLogger(), scanner, engine, analyzer.Options{})

	return NewAnalysisService(pipeline, repo, broadcaster, testLogger()), repo
}

// buildPackage 最小可分析的包（无清单，降级为部分文档）
func buildPackage(t *testing.T, marker string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("assets/" + marker + ".txt")
	require.NoError(t, err)
	_, err = w.Write([]byte(marker))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// TestAnalyzeUpload_CacheFlow 哈希去重:同内容第二次命中缓存，force 强制重分析
func TestAnalyzeUpload_CacheFlow(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	pkg := buildPackage(t, "sample")

	first, cached, err := svc.AnalyzeUpload(ctx, "a.apk", pkg, false)
	require.NoError(t, err)
	assert.False(t, cached)
	require.NotNil(t, first)

	second, cached, err := svc.AnalyzeUpload(ctx, "renamed.apk", pkg, false)
	require.NoError(t, err)
	assert.True(t, cached, "同内容应命中历史记录")
	assert.Equal(t, first.SHA256, second.SHA256)
	// 缓存命中返回历史结果，文件名保留首次分析时的值
	assert.Equal(t, "a.apk", second.FileName)

	_, cached, err = svc.AnalyzeUpload(ctx, "a.apk", pkg, true)
	require.NoError(t, err)
	assert.False(t, cached, "force 应跳过缓存")
}

// TestAnalyzeUpload_Broadcast 完成后推送轻量摘要
func TestAnalyzeUpload_Broadcast(t *testing.T) {
	broadcaster := &captureBroadcaster{}
	svc, _ := newTestService(t, broadcaster)

	result, _, err := svc.AnalyzeUpload(context.Background(), "a.apk", buildPackage(t, "x"), false)
	require.NoError(t, err)

	require.Len(t, broadcaster.messages, 1)
	summary, ok := broadcaster.messages[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "analysis_completed", summary["type"])
	assert.Equal(t, result.SHA256, summary["sha256"])
}

// TestGetReport_RoundTrip 落库后按哈希取回完整报告
func TestGetReport_RoundTrip(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	result, _, err := svc.AnalyzeUpload(ctx, "a.apk", buildPackage(t, "y"), false)
	require.NoError(t, err)

	report, err := svc.GetReport(ctx, result.SHA256)
	require.NoError(t, err)
	assert.Equal(t, result.SHA256, report.SHA256)
	assert.Equal(t, result.Verdict, report.Verdict)
	assert.Equal(t, result.Score, report.Score)

	_, err = svc.GetReport(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

// TestCompare_PersistsBothSides 对比的两侧各自落一条历史
func TestCompare_PersistsBothSides(t *testing.T) {
	svc, repo := newTestService(t, nil)
	ctx := context.Background()

	cmp, err := svc.Compare(ctx,
		analyzer.ComparePackage{FileName: "v1.apk", Data: buildPackage(t, "one")},
		analyzer.ComparePackage{FileName: "v2.apk", Data: buildPackage(t, "two")},
	)
	require.NoError(t, err)
	require.NotNil(t, cmp.First)
	require.NotNil(t, cmp.Second)

	count, err := repo.Count(ctx, repository.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

// TestHistory 查询与总数
func TestHistory(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, _, err := svc.AnalyzeUpload(ctx, "a.apk", buildPackage(t, "h1"), false)
	require.NoError(t, err)
	_, _, err = svc.AnalyzeUpload(ctx, "b.apk", buildPackage(t, "h2"), false)
	require.NoError(t, err)

	records, total, err := svc.History(ctx, repository.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, records, 2)
}
