package util

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv 根据运行环境加载 .env 文件（如 .env.development / .env.production）
// 找不到文件时不视为致命错误，环境变量可能由外部注入
func LoadEnv(env string) error {
	candidates := []string{
		fmt.Sprintf(".env.%s", env),
		".env",
	}
	loaded := false
	for _, name := range candidates {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return err
		}
		loaded = true
	}
	if !loaded {
		return fmt.Errorf("no env file found for %s", env)
	}
	return nil
}

// GetEnv 获取字符串环境变量
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetEnvDefault 获取字符串环境变量，缺省时返回默认值
func GetEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetIntEnv 获取整型环境变量
func GetIntEnv(key string) int64 {
	return cast.ToInt64(os.Getenv(key))
}

// GetIntEnvDefault 获取整型环境变量，缺省时返回默认值
func GetIntEnvDefault(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		return cast.ToInt64(v)
	}
	return def
}

// GetFloatEnv 获取浮点环境变量
func GetFloatEnv(key string) float64 {
	return cast.ToFloat64(os.Getenv(key))
}

// GetBoolEnv 获取布尔环境变量
func GetBoolEnv(key string) bool {
	return cast.ToBool(os.Getenv(key))
}
