package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"VoiceboxStudio/internal/tasks"
	"VoiceboxStudio/pkg/errors"
	"VoiceboxStudio/pkg/response"
)

// 提交一次合成任务，立即返回任务标识，结果靠轮询 /tasks 获取
func (h *Handlers) handleGenerate(c *gin.Context) {
	var req tasks.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInvalidRequest, "invalid request body"))
		return
	}

	taskID, err := h.runner.Submit(req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Accepted(c, "generation task accepted", gin.H{"taskId": taskID})
}

// 轮询所有活动任务
func (h *Handlers) handleListTasks(c *gin.Context) {
	response.Success(c, "active tasks", h.manager.Snapshot())
}

// 取消任务（尽力而为）
func (h *Handlers) handleCancelTask(c *gin.Context) {
	id := c.Param("id")
	if !h.manager.Cancel(id) {
		response.Fail(c, errors.WithCodef(errors.CodeNotFound, "task %s not found", id))
		return
	}
	response.Success(c, "task cancelled", nil)
}

// 生成历史，仅供 UI 展示
func (h *Handlers) handleListGenerations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	gens, total, err := h.gens.List(limit, offset)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "generations", gin.H{"items": gens, "total": total})
}

func (h *Handlers) handleGetGeneration(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	gen, err := h.gens.Get(id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "generation", gen)
}

// 下载生成音频
func (h *Handlers) handleGenerationAudio(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	data, err := h.gens.Audio(id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="generation-`+c.Param("id")+`.wav"`)
	c.Data(200, "audio/wav", data)
}

// 删除生成记录与音频。引用它的故事条目会在导出时报 missing_source
func (h *Handlers) handleDeleteGeneration(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	if err := h.gens.Delete(id); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "generation deleted", nil)
}

func pathID(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, errors.WithCodef(errors.CodeInvalidRequest, "invalid id %q", raw)
	}
	return uint(id), nil
}
