package timeline

import (
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"VoiceboxStudio/internal/models"
	"VoiceboxStudio/pkg/errors"
)

// GenerationSource 时间轴引用的生成记录来源
type GenerationSource interface {
	Get(id uint) (*models.Generation, error)
	Audio(id uint) ([]byte, error)
}

// Service 故事时间轴引擎。同一故事的所有修改串行化，
// 校验失败的操作不留任何部分写入。
type Service struct {
	db   *gorm.DB
	gens GenerationSource

	lockMu sync.Mutex
	locks  map[uint]*sync.Mutex
}

func NewService(db *gorm.DB, gens GenerationSource) *Service {
	return &Service{
		db:    db,
		gens:  gens,
		locks: make(map[uint]*sync.Mutex),
	}
}

// storyLock 每个故事一把锁，粒度足够：操作之间只在同一故事上互斥
func (s *Service) storyLock(storyID uint) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[storyID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[storyID] = l
	}
	return l
}

// CreateStory 新建空故事
func (s *Service) CreateStory(name string) (*models.Story, error) {
	if name == "" {
		return nil, errors.WithCode(errors.CodeInvalidRequest, "story name must not be empty")
	}
	story := models.Story{Name: name}
	if err := s.db.Create(&story).Error; err != nil {
		return nil, err
	}
	story.Items = []models.StoryItem{}
	return &story, nil
}

// ListStories 全部故事，不含条目
func (s *Service) ListStories() ([]models.Story, error) {
	var stories []models.Story
	err := s.db.Order("created_at desc").Find(&stories).Error
	return stories, err
}

// GetStory 读取故事及其条目，条目按时间轴起点排序
func (s *Service) GetStory(id uint) (*models.Story, error) {
	var story models.Story
	err := s.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("start_time_ms asc, id asc")
	}).First(&story, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.WithCodef(errors.CodeNotFound, "story %d not found", id)
		}
		return nil, err
	}
	return &story, nil
}

// RenameStory 重命名
func (s *Service) RenameStory(id uint, name string) (*models.Story, error) {
	if name == "" {
		return nil, errors.WithCode(errors.CodeInvalidRequest, "story name must not be empty")
	}
	story, err := s.GetStory(id)
	if err != nil {
		return nil, err
	}
	story.Name = name
	if err := s.db.Model(story).Update("name", name).Error; err != nil {
		return nil, err
	}
	return story, nil
}

// DeleteStory 删除故事及其全部条目
func (s *Service) DeleteStory(id uint) error {
	story, err := s.GetStory(id)
	if err != nil {
		return err
	}
	lock := s.storyLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := s.db.Select("Items").Delete(story).Error; err != nil {
		return err
	}
	s.lockMu.Lock()
	delete(s.locks, id)
	s.lockMu.Unlock()
	return nil
}

// AddItem 把一条生成记录追加到时间轴末尾：起点为当前最大终点，
// 完整时长、零偏移，并冗余记录语言与档案名
func (s *Service) AddItem(storyID, generationID uint) (*models.Story, error) {
	gen, err := s.gens.Get(generationID)
	if err != nil {
		return nil, err
	}

	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	story, err := s.GetStory(storyID)
	if err != nil {
		return nil, err
	}

	var start int64
	for i := range story.Items {
		if end := story.Items[i].EndTimeMs(); end > start {
			start = end
		}
	}

	item := models.StoryItem{
		StoryID:        storyID,
		GenerationID:   generationID,
		StartTimeMs:    start,
		Duration:       gen.Duration,
		SourceOffsetMs: 0,
		Language:       gen.Language,
		ProfileName:    gen.ProfileName,
	}
	if err := s.db.Create(&item).Error; err != nil {
		return nil, err
	}
	return s.GetStory(storyID)
}

// RemoveItem 移除条目，其余条目原地不动（空隙保留）
func (s *Service) RemoveItem(storyID, itemID uint) (*models.Story, error) {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.findItem(storyID, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.db.Delete(item).Error; err != nil {
		return nil, err
	}
	return s.GetStory(storyID)
}

// Reorder 按给定的生成记录 ID 序列重排整条时间轴：条目从 0 开始首尾相接。
// 序列必须与当前条目的生成记录 ID 多重集完全一致，否则整体拒绝。
// 同一生成记录出现多次时，按时间轴原有顺序逐个消费。
func (s *Service) Reorder(storyID uint, order []uint) (*models.Story, error) {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	story, err := s.GetStory(storyID)
	if err != nil {
		return nil, err
	}
	if len(order) != len(story.Items) {
		return nil, errors.WithCodef(errors.CodeInvalidReorder,
			"order has %d entries, story has %d items", len(order), len(story.Items))
	}

	// GetStory 已按起点排序，同 ID 的队列天然保持时间轴顺序
	queues := make(map[uint][]*models.StoryItem)
	for i := range story.Items {
		it := &story.Items[i]
		queues[it.GenerationID] = append(queues[it.GenerationID], it)
	}

	arranged := make([]*models.StoryItem, 0, len(order))
	for _, genID := range order {
		q := queues[genID]
		if len(q) == 0 {
			return nil, errors.WithCodef(errors.CodeInvalidReorder,
				"generation %d does not match the story's items", genID)
		}
		arranged = append(arranged, q[0])
		queues[genID] = q[1:]
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var cursor int64
		for _, it := range arranged {
			if err := tx.Model(&models.StoryItem{}).Where("id = ?", it.ID).
				Update("start_time_ms", cursor).Error; err != nil {
				return err
			}
			cursor += it.DurationMs()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.Debugf("story %d reordered: %d items", storyID, len(arranged))
	return s.GetStory(storyID)
}

// MoveItem 把条目移动到时间轴上的任意非负起点，允许重叠与空隙
func (s *Service) MoveItem(storyID, itemID uint, startTimeMs int64) (*models.Story, error) {
	if startTimeMs < 0 {
		return nil, errors.WithCode(errors.CodeInvalidRequest, "start time must not be negative")
	}

	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.findItem(storyID, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(item).Update("start_time_ms", startTimeMs).Error; err != nil {
		return nil, err
	}
	return s.GetStory(storyID)
}

// TrimItem 调整条目的源内偏移与播放时长。裁剪窗口必须完全落在
// 底层音频之内，否则 InvalidTrim 且条目保持原样。
func (s *Service) TrimItem(storyID, itemID uint, sourceOffsetMs, durationMs int64) (*models.Story, error) {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.findItem(storyID, itemID)
	if err != nil {
		return nil, err
	}
	if sourceOffsetMs < 0 || durationMs <= 0 {
		return nil, errors.WithCode(errors.CodeInvalidTrim,
			"trim requires a non-negative offset and a positive duration")
	}

	gen, err := s.gens.Get(item.GenerationID)
	if err != nil {
		if errors.GetCode(err) == errors.CodeNotFound {
			return nil, errors.WithCodef(errors.CodeMissingSource,
				"generation %d referenced by item %d has been deleted", item.GenerationID, itemID)
		}
		return nil, err
	}
	if sourceOffsetMs+durationMs > gen.DurationMs() {
		return nil, errors.WithCodef(errors.CodeInvalidTrim,
			"trim window [%d, %d) exceeds source audio length %dms",
			sourceOffsetMs, sourceOffsetMs+durationMs, gen.DurationMs())
	}

	err = s.db.Model(item).Updates(map[string]interface{}{
		"source_offset_ms": sourceOffsetMs,
		"duration":         float64(durationMs) / 1000.0,
	}).Error
	if err != nil {
		return nil, err
	}
	return s.GetStory(storyID)
}

// SplitItem 在条目内部的某个时间点把它一分为二。切点必须严格位于
// 条目内部（不含两端）；两段合起来精确覆盖原条目，无空隙无重叠。
func (s *Service) SplitItem(storyID, itemID uint, splitPointMs int64) (*models.Story, error) {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.findItem(storyID, itemID)
	if err != nil {
		return nil, err
	}
	if splitPointMs <= 0 || splitPointMs >= item.DurationMs() {
		return nil, errors.WithCodef(errors.CodeInvalidSplitPoint,
			"split point %dms must fall strictly inside the item (0, %dms)", splitPointMs, item.DurationMs())
	}

	second := models.StoryItem{
		StoryID:        storyID,
		GenerationID:   item.GenerationID,
		StartTimeMs:    item.StartTimeMs + splitPointMs,
		Duration:       float64(item.DurationMs()-splitPointMs) / 1000.0,
		SourceOffsetMs: item.SourceOffsetMs + splitPointMs,
		Language:       item.Language,
		ProfileName:    item.ProfileName,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.StoryItem{}).Where("id = ?", item.ID).
			Update("duration", float64(splitPointMs)/1000.0).Error; err != nil {
			return err
		}
		return tx.Create(&second).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetStory(storyID)
}

// DuplicateItem 复制条目并紧贴原条目之后放置
func (s *Service) DuplicateItem(storyID, itemID uint) (*models.Story, error) {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.findItem(storyID, itemID)
	if err != nil {
		return nil, err
	}
	copyItem := models.StoryItem{
		StoryID:        storyID,
		GenerationID:   item.GenerationID,
		StartTimeMs:    item.EndTimeMs(),
		Duration:       item.Duration,
		SourceOffsetMs: item.SourceOffsetMs,
		Language:       item.Language,
		ProfileName:    item.ProfileName,
	}
	if err := s.db.Create(&copyItem).Error; err != nil {
		return nil, err
	}
	return s.GetStory(storyID)
}

func (s *Service) findItem(storyID, itemID uint) (*models.StoryItem, error) {
	var item models.StoryItem
	err := s.db.Where("id = ? AND story_id = ?", itemID, storyID).First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.WithCodef(errors.CodeNotFound, "story item %d not found", itemID)
		}
		return nil, err
	}
	return &item, nil
}
