package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const DbField = "db"

// InjectDB 注入全局数据库连接
func InjectDB(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(DbField, db)
		c.Next()
	}
}

// RequestLogger 请求日志，导出等慢请求可从 latency 字段观察
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logrus.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= 500 {
			entry.Error("request failed")
		} else {
			entry.Debug("request")
		}
	}
}
