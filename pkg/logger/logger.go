package logger

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `env:"LOG_LEVEL"`
	Filename   string `env:"LOG_FILENAME"`
	MaxSize    int    `env:"LOG_MAX_SIZE"` // 单文件最大体积，MB
	MaxAge     int    `env:"LOG_MAX_AGE"`  // 保留天数
	MaxBackups int    `env:"LOG_MAX_BACKUPS"`
}

// Init 初始化全局 logrus：stderr 输出，配置了文件名时同时写入滚动日志文件
func Init(cfg LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	// 桌面壳通过 stderr 捕获后端日志
	var out io.Writer = os.Stderr
	if cfg.Filename != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotator)
	}
	logrus.SetOutput(out)
}
