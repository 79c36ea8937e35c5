package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/apkshield/apkshield-go/internal/config"
	"github.com/apkshield/apkshield-go/internal/domain"
	"github.com/apkshield/apkshield-go/internal/repository"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := config.InitLogger(&cfg.Log)

	db, err := repository.InitDB(&cfg.Database, logger)
	if err != nil {
		log.Fatal(err)
	}

	// 迁移分析记录表
	if err := db.AutoMigrate(&domain.AnalysisRecord{}); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	fmt.Println("✓ Migration completed successfully")
}
