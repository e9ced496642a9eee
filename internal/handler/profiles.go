package handlers

import (
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"VoiceboxStudio/pkg/errors"
	"VoiceboxStudio/pkg/response"
)

// 参考音频上传上限，正常参考样本远小于此
const maxSampleUploadBytes = 32 << 20

func (h *Handlers) handleCreateProfile(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Language    string `json:"language"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInvalidRequest, "invalid request body"))
		return
	}
	profile, err := h.profiles.Create(req.Name, req.Language, req.Description)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, "profile created", profile)
}

func (h *Handlers) handleListProfiles(c *gin.Context) {
	list, err := h.profiles.List()
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "profiles", list)
}

func (h *Handlers) handleGetProfile(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	profile, err := h.profiles.Resolve(id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "profile", profile)
}

func (h *Handlers) handleUpdateProfile(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req struct {
		Name        string `json:"name"`
		Language    string `json:"language"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInvalidRequest, "invalid request body"))
		return
	}
	profile, err := h.profiles.Update(id, req.Name, req.Language, req.Description)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "profile updated", profile)
}

func (h *Handlers) handleDeleteProfile(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	if err := h.profiles.Delete(id); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "profile deleted", nil)
}

// 上传参考样本：multipart 表单，file 为 16bit PCM wav，transcript 为其文字内容
func (h *Handlers) handleUploadSample(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, errors.WithCode(errors.CodeInvalidRequest, "missing file field"))
		return
	}
	if file.Size > maxSampleUploadBytes {
		response.Fail(c, errors.WithCodef(errors.CodeInvalidRequest,
			"file too large: %d bytes (limit %d)", file.Size, maxSampleUploadBytes))
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInvalidRequest, "cannot read uploaded file"))
		return
	}
	defer f.Close()
	wav, err := io.ReadAll(f)
	if err != nil {
		response.Fail(c, errors.Wrap(err, errors.CodeInvalidRequest, "cannot read uploaded file"))
		return
	}

	fileKey := fmt.Sprintf("samples/%s.wav", uuid.NewString())
	sample, err := h.profiles.AddSample(id, wav, c.PostForm("transcript"), fileKey)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, "sample added", sample)
}

func (h *Handlers) handleRemoveSample(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	sid, err := pathID(c, "sid")
	if err != nil {
		response.Fail(c, err)
		return
	}
	if err := h.profiles.RemoveSample(id, sid); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, "sample removed", nil)
}
