package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"VoiceboxStudio/pkg/errors"
	"VoiceboxStudio/pkg/response"
)

func (h *Handlers) handleCreateStory(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInvalidRequest, "invalid request body"))
		return
	}
	story, err := h.stories.CreateStory(req.Name)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, "story created", story)
}

func (h *Handlers) handleListStories(c *gin.Context) {
	list, err := h.stories.ListStories()
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "stories", list)
}

func (h *Handlers) handleGetStory(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	story, err := h.stories.GetStory(id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "story", story)
}

func (h *Handlers) handleRenameStory(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInvalidRequest, "invalid request body"))
		return
	}
	story, err := h.stories.RenameStory(id, req.Name)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "story renamed", story)
}

func (h *Handlers) handleDeleteStory(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	if err := h.stories.DeleteStory(id); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "story deleted", nil)
}

// 把一条生成记录追加到时间轴末尾
func (h *Handlers) handleAddItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req struct {
		GenerationID uint `json:"generationId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInvalidRequest, "invalid request body"))
		return
	}
	story, err := h.stories.AddItem(id, req.GenerationID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "item added", story)
}

func (h *Handlers) handleRemoveItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	itemID, err := pathID(c, "itemId")
	if err != nil {
		response.Fail(c, err)
		return
	}
	story, err := h.stories.RemoveItem(id, itemID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "item removed", story)
}

// 按生成记录 ID 序列整体重排，首尾相接
func (h *Handlers) handleReorder(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req struct {
		Order []uint `json:"order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInvalidRequest, "invalid request body"))
		return
	}
	story, err := h.stories.Reorder(id, req.Order)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "story reordered", story)
}

func (h *Handlers) handleMoveItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	itemID, err := pathID(c, "itemId")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req struct {
		StartTimeMs int64 `json:"startTimeMs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInvalidRequest, "invalid request body"))
		return
	}
	story, err := h.stories.MoveItem(id, itemID, req.StartTimeMs)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "item moved", story)
}

func (h *Handlers) handleTrimItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	itemID, err := pathID(c, "itemId")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req struct {
		SourceOffsetMs int64 `json:"sourceOffsetMs"`
		DurationMs     int64 `json:"durationMs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInvalidRequest, "invalid request body"))
		return
	}
	story, err := h.stories.TrimItem(id, itemID, req.SourceOffsetMs, req.DurationMs)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "item trimmed", story)
}

func (h *Handlers) handleSplitItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	itemID, err := pathID(c, "itemId")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req struct {
		SplitPointMs int64 `json:"splitPointMs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInvalidRequest, "invalid request body"))
		return
	}
	story, err := h.stories.SplitItem(id, itemID, req.SplitPointMs)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "item split", story)
}

func (h *Handlers) handleDuplicateItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	itemID, err := pathID(c, "itemId")
	if err != nil {
		response.Fail(c, err)
		return
	}
	story, err := h.stories.DuplicateItem(id, itemID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "item duplicated", story)
}

// 导出整条时间轴为 WAV 下载
func (h *Handlers) handleExportStory(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}

	started := time.Now()
	data, err := h.exporter.Export(id)
	if err != nil {
		h.metrics.ObserveExport("error", time.Since(started))
		response.Fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="story-`+c.Param("id")+`.wav"`)
	c.Data(200, "audio/wav", data)
}
