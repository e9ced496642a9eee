package config

import (
	"log"
	"os"
	"path/filepath"

	"VoiceboxStudio/pkg/logger"
	"VoiceboxStudio/pkg/util"
)

// config/config.go
type Config struct {
	Addr      string `env:"ADDR"`
	Mode      string `env:"MODE"`
	APIPrefix string `env:"API_PREFIX"`
	DataDir   string `env:"DATA_DIR"`
	DBDriver  string `env:"DB_DRIVER"`
	DSN       string `env:"DSN"`
	Log       logger.LogConfig

	// 合成后端（本地 sidecar 进程）
	TTSBackendURL    string `env:"TTS_BACKEND_URL"`
	DefaultModelSize string `env:"DEFAULT_MODEL_SIZE"`

	// 任务与缓存
	MaxTextLength    int `env:"MAX_TEXT_LENGTH"`
	PromptCacheSize  int `env:"PROMPT_CACHE_SIZE"`
	TaskRetentionSec int `env:"TASK_RETENTION_SECONDS"`

	// 音频存储：local 或 minio
	StorageType string `env:"STORAGE_TYPE"`

	// 合成提交接口限流，ulule/limiter 速率格式，如 "30-M"
	GenerateRate string `env:"GENERATE_RATE"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = &Config{
		Addr:      util.GetEnvDefault("ADDR", "127.0.0.1:17493"),
		Mode:      util.GetEnvDefault("MODE", "debug"),
		APIPrefix: util.GetEnvDefault("API_PREFIX", "/api"),
		DataDir:   util.GetEnvDefault("DATA_DIR", defaultDataDir()),
		DBDriver:  util.GetEnv("DB_DRIVER"),
		DSN:       util.GetEnv("DSN"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		TTSBackendURL:    util.GetEnvDefault("TTS_BACKEND_URL", "http://127.0.0.1:17494"),
		DefaultModelSize: util.GetEnvDefault("DEFAULT_MODEL_SIZE", "1.7B"),
		MaxTextLength:    int(util.GetIntEnvDefault("MAX_TEXT_LENGTH", 5000)),
		PromptCacheSize:  int(util.GetIntEnvDefault("PROMPT_CACHE_SIZE", 16)),
		TaskRetentionSec: int(util.GetIntEnvDefault("TASK_RETENTION_SECONDS", 300)),
		StorageType:      util.GetEnvDefault("STORAGE_TYPE", "local"),
		GenerateRate:     util.GetEnvDefault("GENERATE_RATE", "30-M"),
	}

	if GlobalConfig.DSN == "" && GlobalConfig.DBDriver == "" {
		GlobalConfig.DSN = filepath.Join(GlobalConfig.DataDir, "voicebox.db")
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".voicebox-studio")
}
