package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 任务阶段变化的 SSE 推送。轮询 /tasks 仍是权威读路径，
// 这里只是低延迟镜像，断线后客户端直接重连即可。
func (h *Handlers) handleEvents(c *gin.Context) {
	h.hub.Serve(c, uuid.NewString())
}
