package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit 按客户端 IP 限流，只作用于给定的路径前缀。
// rate 使用 ulule/limiter 的速率格式，如 "30-M"、"5-S"。
// 合成请求会独占模型，这里兜底防御失控的前端轮询/重试风暴。
func RateLimit(rate string, pathPrefixes ...string) gin.HandlerFunc {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		logrus.Warnf("invalid rate %q, rate limiting disabled: %v", rate, err)
		return func(c *gin.Context) { c.Next() }
	}
	instance := limiter.New(memory.NewStore(), r)

	return func(c *gin.Context) {
		if len(pathPrefixes) > 0 {
			matched := false
			for _, p := range pathPrefixes {
				if strings.HasPrefix(c.Request.URL.Path, p) {
					matched = true
					break
				}
			}
			if !matched {
				c.Next()
				return
			}
		}

		lctx, err := instance.Get(c, c.ClientIP())
		if err != nil {
			c.Next()
			return
		}
		if lctx.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}
