package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/apkshield/apkshield-go/internal/config"
	"github.com/apkshield/apkshield-go/internal/domain"
	"github.com/apkshield/apkshield-go/internal/repository"
	"github.com/apkshield/apkshield-go/internal/scoring"
)

// 用当前模型重新评分历史记录，特征不重新提取。
// 模型升级后批量刷新历史结论用。
func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	batchSize := flag.Int("batch", 100, "每批处理记录数")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := config.InitLogger(&cfg.Log)

	db, err := repository.InitDB(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	engine, err := scoring.NewEngine(logger, scoring.Options{
		ModelPath:         cfg.Scoring.ModelPath,
		SafeThreshold:     cfg.Scoring.SafeThreshold,
		HighRiskThreshold: cfg.Scoring.HighRiskThreshold,
		TopFeatures:       cfg.Scoring.TopFeatures,
	})
	if err != nil {
		log.Fatalf("Failed to load scoring model: %v", err)
	}

	recordRepo := repository.NewAnalysisRecordRepository(db)
	ctx := context.Background()

	fmt.Printf("Rescoring with model %s\n", engine.ModelVersion())

	var rescored, skipped, failed int
	for offset := 0; ; offset += *batchSize {
		records, err := recordRepo.List(ctx, repository.RecordFilter{
			Limit:  *batchSize,
			Offset: offset,
		})
		if err != nil {
			log.Fatalf("Failed to list records: %v", err)
		}
		if len(records) == 0 {
			break
		}

		for i := range records {
			record := &records[i]
			if record.ResultJSON == "" {
				skipped++
				continue
			}

			var result domain.AnalysisResult
			if err := json.Unmarshal([]byte(record.ResultJSON), &result); err != nil {
				fmt.Printf("✗ %s: 结果反序列化失败: %v\n", record.SHA256, err)
				failed++
				continue
			}
			if result.Features == nil {
				skipped++
				continue
			}

			outcome, err := engine.Score(result.Features)
			if err != nil {
				fmt.Printf("✗ %s: 评分失败: %v\n", record.SHA256, err)
				failed++
				continue
			}

			result.Score = outcome.Score
			result.Probability = outcome.Probability
			result.Verdict = outcome.Verdict
			result.Explanation = outcome.Explanation
			result.ExplanationAvailable = outcome.ExplanationAvailable
			result.ModelVersion = outcome.ModelVersion

			payload, err := json.Marshal(&result)
			if err != nil {
				failed++
				continue
			}

			record.Score = outcome.Score
			record.Probability = outcome.Probability
			record.Verdict = string(outcome.Verdict)
			record.ModelVersion = outcome.ModelVersion
			record.ResultJSON = string(payload)

			if err := recordRepo.Upsert(ctx, record); err != nil {
				fmt.Printf("✗ %s: 保存失败: %v\n", record.SHA256, err)
				failed++
				continue
			}
			rescored++
		}
	}

	fmt.Printf("✓ Rescore completed: %d rescored, %d skipped, %d failed\n", rescored, skipped, failed)
}
