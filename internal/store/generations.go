package store

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"VoiceboxStudio/internal/models"
	"VoiceboxStudio/pkg/audio"
	"VoiceboxStudio/pkg/errors"
	"VoiceboxStudio/pkg/storage"
)

// GenerationStore 已完成合成结果的持久化：音频写对象存储，元数据落库。
// Generation 一经写入不再修改。
type GenerationStore struct {
	db    *gorm.DB
	blobs storage.Store
}

func NewGenerationStore(db *gorm.DB, blobs storage.Store) *GenerationStore {
	return &GenerationStore{db: db, blobs: blobs}
}

// SaveMeta 随音频一起落库的元数据
type SaveMeta struct {
	ProfileID   uint
	ProfileName string
	Text        string
	Language    string
	ModelSize   string
	Seed        *int64
}

// Save 持久化一段合成音频，返回新的 Generation。
// 先写音频对象再写行，行写失败时回收对象，保证不会出现无音频的记录。
func (s *GenerationStore) Save(clip *audio.Clip, meta SaveMeta) (*models.Generation, error) {
	key := fmt.Sprintf("generations/%s.wav", uuid.NewString())
	wav := audio.EncodeWAV(clip)

	if err := s.blobs.Write(key, bytes.NewReader(wav), int64(len(wav))); err != nil {
		return nil, err
	}

	gen := models.Generation{
		ProfileID:   meta.ProfileID,
		ProfileName: meta.ProfileName,
		Text:        meta.Text,
		Language:    meta.Language,
		ModelSize:   meta.ModelSize,
		Duration:    clip.Duration(),
		AudioKey:    key,
		Seed:        meta.Seed,
	}
	if err := s.db.Create(&gen).Error; err != nil {
		if derr := s.blobs.Delete(key); derr != nil {
			logrus.Warnf("failed to clean up orphan blob %s: %v", key, derr)
		}
		return nil, err
	}
	return &gen, nil
}

// Get 读取一条 Generation 元数据
func (s *GenerationStore) Get(id uint) (*models.Generation, error) {
	var gen models.Generation
	if err := s.db.First(&gen, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.WithCodef(errors.CodeNotFound, "generation %d not found", id)
		}
		return nil, err
	}
	return &gen, nil
}

// Audio 读取一条 Generation 的音频字节；记录或对象缺失返回 MissingSource
func (s *GenerationStore) Audio(id uint) ([]byte, error) {
	gen, err := s.Get(id)
	if err != nil {
		if errors.GetCode(err) == errors.CodeNotFound {
			return nil, errors.WithCodef(errors.CodeMissingSource, "generation %d has been deleted", id)
		}
		return nil, err
	}
	data, err := storage.ReadAll(s.blobs, gen.AudioKey)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeMissingSource, "audio for generation %d is missing", id)
	}
	return data, nil
}

// List 历史记录，仅供 UI 展示
func (s *GenerationStore) List(limit, offset int) ([]models.Generation, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var total int64
	if err := s.db.Model(&models.Generation{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var gens []models.Generation
	err := s.db.Order("created_at desc").Limit(limit).Offset(offset).Find(&gens).Error
	return gens, total, err
}

// Delete 删除记录与音频对象。引用它的 StoryItem 不级联处理，
// 导出时会以 MissingSource 暴露
func (s *GenerationStore) Delete(id uint) error {
	gen, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(gen).Error; err != nil {
		return err
	}
	if err := s.blobs.Delete(gen.AudioKey); err != nil {
		logrus.Warnf("failed to delete generation blob %s: %v", gen.AudioKey, err)
	}
	return nil
}
