package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Log      LogConfig      `mapstructure:"log"`
	APKDir   string         `mapstructure:"apk_dir"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // mysql, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
}

// AnalysisConfig 静态分析管线配置
type AnalysisConfig struct {
	MaxEntrySizeMB  int `mapstructure:"max_entry_size_mb"`  // 单个条目解压上限
	MaxUploadSizeMB int `mapstructure:"max_upload_size_mb"` // 上传文件上限
	MinStringLength int `mapstructure:"min_string_length"`  // 字符串提取最小长度
	MaxFindings     int `mapstructure:"max_findings"`       // 可疑发现条数上限
}

// ScoringConfig 评分引擎配置
// 阈值是可调配置而非硬编码常量
type ScoringConfig struct {
	ModelPath         string  `mapstructure:"model_path"` // 为空时使用内嵌模型
	SafeThreshold     float64 `mapstructure:"safe_threshold"`
	HighRiskThreshold float64 `mapstructure:"high_risk_threshold"`
	TopFeatures       int     `mapstructure:"top_features"`
}

type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Queue    string `mapstructure:"queue"`
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"` // Worker 数量
	QueueSize   int `mapstructure:"queue_size"`  // 任务队列大小
}

// WatcherConfig 目录监听配置，监听到的 APK 自动入队分析
type WatcherConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Pattern string `mapstructure:"pattern"` // 文件名后缀，默认 .apk
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	setDefaults()

	// 环境变量覆盖（支持嵌套配置）
	viper.AutomaticEnv()

	// 绑定环境变量到嵌套配置路径
	// RabbitMQ
	viper.BindEnv("rabbitmq.host", "RABBITMQ_HOST")
	viper.BindEnv("rabbitmq.port", "RABBITMQ_PORT")
	viper.BindEnv("rabbitmq.user", "RABBITMQ_USER")
	viper.BindEnv("rabbitmq.password", "RABBITMQ_PASS")

	// Database
	viper.BindEnv("database.type", "DB_TYPE")
	viper.BindEnv("database.host", "MYSQL_HOST")
	viper.BindEnv("database.port", "MYSQL_PORT")
	viper.BindEnv("database.user", "MYSQL_USER")
	viper.BindEnv("database.password", "MYSQL_PASS")
	viper.BindEnv("database.db_name", "MYSQL_DB")

	// Scoring
	viper.BindEnv("scoring.model_path", "MODEL_PATH")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.db_name", "apkshield.db")
	viper.SetDefault("analysis.max_entry_size_mb", 64)
	viper.SetDefault("analysis.max_upload_size_mb", 200)
	viper.SetDefault("analysis.min_string_length", 6)
	viper.SetDefault("analysis.max_findings", 200)
	viper.SetDefault("scoring.safe_threshold", 3.0)
	viper.SetDefault("scoring.high_risk_threshold", 7.0)
	viper.SetDefault("scoring.top_features", 5)
	viper.SetDefault("rabbitmq.queue", "apk_analysis")
	viper.SetDefault("worker.concurrency", 4)
	viper.SetDefault("worker.queue_size", 100)
	viper.SetDefault("watcher.pattern", ".apk")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}
