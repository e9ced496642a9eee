package profiles

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"VoiceboxStudio/internal/models"
	"VoiceboxStudio/internal/synth"
	"VoiceboxStudio/pkg/audio"
	"VoiceboxStudio/pkg/errors"
	"VoiceboxStudio/pkg/storage"
)

// PromptInvalidator 样本变更后失效声纹缓存的回调
type PromptInvalidator interface {
	Invalidate(profileID uint)
}

// Service 声音档案服务。样本的任何增删改都会立即失效该档案的 prompt 缓存。
type Service struct {
	db      *gorm.DB
	blobs   storage.Store
	prompts PromptInvalidator

	// 冗余展示字段（档案名）的读穿缓存，允许短暂陈旧
	names *gocache.Cache
}

func NewService(db *gorm.DB, blobs storage.Store, prompts PromptInvalidator) *Service {
	return &Service{
		db:      db,
		blobs:   blobs,
		prompts: prompts,
		names:   gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// Resolve 解析档案（含样本），不存在时返回 UnknownProfile
func (s *Service) Resolve(id uint) (*models.VoiceProfile, error) {
	var profile models.VoiceProfile
	if err := s.db.Preload("Samples").First(&profile, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.WithCodef(errors.CodeUnknownProfile, "voice profile %d not found", id)
		}
		return nil, err
	}
	return &profile, nil
}

// LoadSamples 取出档案全部参考样本的音频字节，供 prompt 构建使用
func (s *Service) LoadSamples(profile *models.VoiceProfile) ([]synth.Sample, error) {
	if len(profile.Samples) == 0 {
		return nil, errors.WithCodef(errors.CodeInvalidRequest, "profile %d has no reference samples", profile.ID)
	}
	out := make([]synth.Sample, 0, len(profile.Samples))
	for _, sm := range profile.Samples {
		data, err := storage.ReadAll(s.blobs, sm.FileKey)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeMissingSource, "reference sample %d audio missing", sm.ID)
		}
		out = append(out, synth.Sample{
			Audio:      data,
			Transcript: sm.Transcript,
			Checksum:   sm.Checksum,
		})
	}
	return out, nil
}

// List 全部档案（含样本）
func (s *Service) List() ([]models.VoiceProfile, error) {
	var profiles []models.VoiceProfile
	if err := s.db.Preload("Samples").Order("created_at desc").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// Create 新建档案
func (s *Service) Create(name, language, description string) (*models.VoiceProfile, error) {
	if name == "" {
		return nil, errors.WithCode(errors.CodeInvalidRequest, "profile name must not be empty")
	}
	profile := models.VoiceProfile{Name: name, Language: language, Description: description}
	if err := s.db.Create(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update 更新档案基础字段
func (s *Service) Update(id uint, name, language, description string) (*models.VoiceProfile, error) {
	profile, err := s.Resolve(id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		profile.Name = name
	}
	if language != "" {
		profile.Language = language
	}
	if description != "" {
		profile.Description = description
	}
	if err := s.db.Save(profile).Error; err != nil {
		return nil, err
	}
	s.names.Delete(nameKey(id))
	return profile, nil
}

// Delete 删除档案及其样本，并失效声纹缓存
func (s *Service) Delete(id uint) error {
	profile, err := s.Resolve(id)
	if err != nil {
		return err
	}
	for _, sm := range profile.Samples {
		if err := s.blobs.Delete(sm.FileKey); err != nil {
			logrus.Warnf("failed to delete sample blob %s: %v", sm.FileKey, err)
		}
	}
	if err := s.db.Select("Samples").Delete(profile).Error; err != nil {
		return err
	}
	s.prompts.Invalidate(id)
	s.names.Delete(nameKey(id))
	return nil
}

// AddSample 校验并保存一条参考样本，然后失效该档案的 prompt 缓存
func (s *Service) AddSample(profileID uint, wav []byte, transcript, fileKey string) (*models.ReferenceSample, error) {
	profile, err := s.Resolve(profileID)
	if err != nil {
		return nil, err
	}

	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidRequest, "reference audio must be a 16-bit PCM wav file")
	}
	if err := audio.ValidateReference(clip); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidRequest, err.Error())
	}

	sum := sha256.Sum256(wav)
	checksum := hex.EncodeToString(sum[:])

	if err := s.blobs.Write(fileKey, bytes.NewReader(wav), int64(len(wav))); err != nil {
		return nil, err
	}

	sample := models.ReferenceSample{
		ProfileID:  profile.ID,
		FileKey:    fileKey,
		Transcript: transcript,
		DurationMs: clip.DurationMs(),
		SizeBytes:  int64(len(wav)),
		Checksum:   checksum,
	}
	if err := s.db.Create(&sample).Error; err != nil {
		s.blobs.Delete(fileKey)
		return nil, err
	}

	// 样本集变了，旧 prompt 必须失效（正确性契约）
	s.prompts.Invalidate(profile.ID)
	return &sample, nil
}

// RemoveSample 删除一条参考样本并失效该档案的 prompt 缓存
func (s *Service) RemoveSample(profileID, sampleID uint) error {
	var sample models.ReferenceSample
	err := s.db.Where("id = ? AND profile_id = ?", sampleID, profileID).First(&sample).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.WithCodef(errors.CodeNotFound, "reference sample %d not found", sampleID)
		}
		return err
	}
	if err := s.db.Delete(&sample).Error; err != nil {
		return err
	}
	if err := s.blobs.Delete(sample.FileKey); err != nil {
		logrus.Warnf("failed to delete sample blob %s: %v", sample.FileKey, err)
	}
	s.prompts.Invalidate(profileID)
	return nil
}

// DisplayName 档案名读穿缓存，用于填充冗余展示字段
func (s *Service) DisplayName(id uint) string {
	if v, ok := s.names.Get(nameKey(id)); ok {
		return v.(string)
	}
	var profile models.VoiceProfile
	if err := s.db.Select("name").First(&profile, id).Error; err != nil {
		return ""
	}
	s.names.Set(nameKey(id), profile.Name, gocache.DefaultExpiration)
	return profile.Name
}

func nameKey(id uint) string {
	return fmt.Sprintf("profile_name:%d", id)
}
