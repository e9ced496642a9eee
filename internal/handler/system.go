package handlers

import (
	"github.com/gin-gonic/gin"

	"VoiceboxStudio/pkg/errors"
	"VoiceboxStudio/pkg/metrics"
	"VoiceboxStudio/pkg/response"
)

// HealthCheck 存活探测：连通数据库即视为健康
func (h *Handlers) HealthCheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInternal, "database unreachable"))
		return
	}
	response.Success(c, "ok", gin.H{
		"residentModel": h.guard.Resident(),
		"sseClients":    h.hub.ClientCount(),
	})
}

// 系统资源快照，前端据此提示可选的模型规格
func (h *Handlers) handleSystemStats(c *gin.Context) {
	stats, err := metrics.CollectSystem()
	if err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInternal, "failed to collect system stats"))
		return
	}
	response.Success(c, "system stats", stats)
}
