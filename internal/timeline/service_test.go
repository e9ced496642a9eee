package timeline

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"VoiceboxStudio/internal/models"
	"VoiceboxStudio/pkg/audio"
	"VoiceboxStudio/pkg/errors"
)

// fakeGens 直接从内存合成源音频，省掉对象存储
type fakeGens struct {
	gens map[uint]*models.Generation
}

func (f *fakeGens) Get(id uint) (*models.Generation, error) {
	g, ok := f.gens[id]
	if !ok {
		return nil, errors.WithCodef(errors.CodeNotFound, "generation %d not found", id)
	}
	return g, nil
}

func (f *fakeGens) Audio(id uint) ([]byte, error) {
	g, ok := f.gens[id]
	if !ok {
		return nil, errors.WithCodef(errors.CodeMissingSource, "generation %d has been deleted", id)
	}
	n := int(g.Duration * float64(audio.DefaultSampleRate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.25
	}
	return audio.EncodeWAV(audio.NewClip(samples, audio.DefaultSampleRate)), nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func newTestService(t *testing.T, durations ...float64) (*Service, *fakeGens) {
	t.Helper()
	gens := &fakeGens{gens: make(map[uint]*models.Generation)}
	for i, d := range durations {
		id := uint(i + 1)
		gens.gens[id] = &models.Generation{
			ID:          id,
			ProfileName: "Narrator",
			Language:    "en",
			Duration:    d,
		}
	}
	return NewService(openTestDB(t), gens), gens
}

func TestAddItemAppendsAtTimelineEnd(t *testing.T) {
	svc, _ := newTestService(t, 2.0, 3.0)

	story, err := svc.CreateStory("chapter one")
	require.NoError(t, err)

	story, err = svc.AddItem(story.ID, 1)
	require.NoError(t, err)
	require.Len(t, story.Items, 1)
	assert.EqualValues(t, 0, story.Items[0].StartTimeMs)
	assert.Equal(t, 2.0, story.Items[0].Duration)
	assert.Equal(t, "Narrator", story.Items[0].ProfileName)
	assert.Equal(t, "en", story.Items[0].Language)

	story, err = svc.AddItem(story.ID, 2)
	require.NoError(t, err)
	require.Len(t, story.Items, 2)
	assert.EqualValues(t, 2000, story.Items[1].StartTimeMs)
}

func TestAddItemUnknownGeneration(t *testing.T) {
	svc, _ := newTestService(t, 2.0)
	story, err := svc.CreateStory("s")
	require.NoError(t, err)

	_, err = svc.AddItem(story.ID, 99)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestRemoveItemPreservesGaps(t *testing.T) {
	svc, _ := newTestService(t, 2.0, 3.0, 1.0)
	story, _ := svc.CreateStory("s")
	for id := uint(1); id <= 3; id++ {
		var err error
		story, err = svc.AddItem(story.ID, id)
		require.NoError(t, err)
	}

	// 移除中间条目，后续条目原地不动
	story, err := svc.RemoveItem(story.ID, story.Items[1].ID)
	require.NoError(t, err)
	require.Len(t, story.Items, 2)
	assert.EqualValues(t, 0, story.Items[0].StartTimeMs)
	assert.EqualValues(t, 5000, story.Items[1].StartTimeMs)
}

func TestReorderBackToBack(t *testing.T) {
	svc, _ := newTestService(t, 2.0, 3.0)
	story, _ := svc.CreateStory("s")
	story, _ = svc.AddItem(story.ID, 1) // [0, 2000)
	story, err := svc.AddItem(story.ID, 2)
	require.NoError(t, err) // [2000, 5000)

	// B, A：B 占 [0, 3000)，A 占 [3000, 5000)
	story, err = svc.Reorder(story.ID, []uint{2, 1})
	require.NoError(t, err)
	require.Len(t, story.Items, 2)
	assert.EqualValues(t, 2, story.Items[0].GenerationID)
	assert.EqualValues(t, 0, story.Items[0].StartTimeMs)
	assert.EqualValues(t, 1, story.Items[1].GenerationID)
	assert.EqualValues(t, 3000, story.Items[1].StartTimeMs)
}

func TestReorderRejectsMismatch(t *testing.T) {
	svc, _ := newTestService(t, 2.0, 3.0)
	story, _ := svc.CreateStory("s")
	story, _ = svc.AddItem(story.ID, 1)
	story, _ = svc.AddItem(story.ID, 2)

	for _, order := range [][]uint{
		{1},          // 数量不符
		{1, 1},       // 重数不符
		{1, 99},      // 未知 ID
		{1, 2, 2},    // 多余条目
	} {
		_, err := svc.Reorder(story.ID, order)
		assert.Equal(t, errors.CodeInvalidReorder, errors.GetCode(err), "order %v", order)
	}

	// 拒绝后时间轴保持原样
	story, err := svc.GetStory(story.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, story.Items[0].StartTimeMs)
	assert.EqualValues(t, 2000, story.Items[1].StartTimeMs)
}

func TestReorderDuplicateGenerations(t *testing.T) {
	svc, _ := newTestService(t, 2.0)
	story, _ := svc.CreateStory("s")
	story, _ = svc.AddItem(story.ID, 1)
	story, err := svc.AddItem(story.ID, 1)
	require.NoError(t, err)

	firstID := story.Items[0].ID
	secondID := story.Items[1].ID

	// 同一生成记录出现两次：按时间轴原有顺序消费
	story, err = svc.Reorder(story.ID, []uint{1, 1})
	require.NoError(t, err)
	assert.Equal(t, firstID, story.Items[0].ID)
	assert.Equal(t, secondID, story.Items[1].ID)
	assert.EqualValues(t, 0, story.Items[0].StartTimeMs)
	assert.EqualValues(t, 2000, story.Items[1].StartTimeMs)
}

func TestMoveItemFreePlacement(t *testing.T) {
	svc, _ := newTestService(t, 2.0, 3.0)
	story, _ := svc.CreateStory("s")
	story, _ = svc.AddItem(story.ID, 1)
	story, _ = svc.AddItem(story.ID, 2)

	// 移动到与第一条重叠的位置：合法
	story, err := svc.MoveItem(story.ID, story.Items[1].ID, 500)
	require.NoError(t, err)
	assert.EqualValues(t, 500, story.Items[1].StartTimeMs)

	_, err = svc.MoveItem(story.ID, story.Items[0].ID, -1)
	assert.Equal(t, errors.CodeInvalidRequest, errors.GetCode(err))
}

func TestTrimItem(t *testing.T) {
	svc, _ := newTestService(t, 4.0)
	story, _ := svc.CreateStory("s")
	story, _ = svc.AddItem(story.ID, 1)
	itemID := story.Items[0].ID

	story, err := svc.TrimItem(story.ID, itemID, 500, 3000)
	require.NoError(t, err)
	assert.EqualValues(t, 500, story.Items[0].SourceOffsetMs)
	assert.Equal(t, 3.0, story.Items[0].Duration)

	// 超出源音频范围：拒绝且条目保持原样
	for _, window := range [][2]int64{
		{2000, 3000}, // 越过末尾
		{-1, 1000},   // 负偏移
		{0, 0},       // 零时长
		{0, 4001},    // 超过全长
	} {
		_, err := svc.TrimItem(story.ID, itemID, window[0], window[1])
		assert.Equal(t, errors.CodeInvalidTrim, errors.GetCode(err), "window %v", window)
	}
	story, err = svc.GetStory(story.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 500, story.Items[0].SourceOffsetMs)
	assert.Equal(t, 3.0, story.Items[0].Duration)
}

func TestSplitItem(t *testing.T) {
	svc, _ := newTestService(t, 4.0)
	story, _ := svc.CreateStory("s")
	story, _ = svc.AddItem(story.ID, 1)
	itemID := story.Items[0].ID

	story, err := svc.SplitItem(story.ID, itemID, 1500)
	require.NoError(t, err)
	require.Len(t, story.Items, 2)

	first, second := story.Items[0], story.Items[1]
	assert.EqualValues(t, 0, first.StartTimeMs)
	assert.Equal(t, 1.5, first.Duration)
	assert.EqualValues(t, 0, first.SourceOffsetMs)

	assert.EqualValues(t, 1500, second.StartTimeMs)
	assert.Equal(t, 2.5, second.Duration)
	assert.EqualValues(t, 1500, second.SourceOffsetMs)
	assert.EqualValues(t, 1, second.GenerationID)

	// 两段精确覆盖原范围
	assert.Equal(t, first.EndTimeMs(), second.StartTimeMs)
	assert.EqualValues(t, 4000, second.EndTimeMs())
}

func TestSplitItemRejectsBoundary(t *testing.T) {
	svc, _ := newTestService(t, 4.0)
	story, _ := svc.CreateStory("s")
	story, _ = svc.AddItem(story.ID, 1)
	itemID := story.Items[0].ID

	for _, point := range []int64{0, -100, 4000, 5000} {
		_, err := svc.SplitItem(story.ID, itemID, point)
		assert.Equal(t, errors.CodeInvalidSplitPoint, errors.GetCode(err), "point %d", point)
	}
	story, err := svc.GetStory(story.ID)
	require.NoError(t, err)
	assert.Len(t, story.Items, 1, "rejected split must not leave partial writes")
}

func TestDuplicateItemPlacedAfterOriginal(t *testing.T) {
	svc, _ := newTestService(t, 4.0)
	story, _ := svc.CreateStory("s")
	story, _ = svc.AddItem(story.ID, 1)

	// 先裁剪，复制要带着源范围
	story, err := svc.TrimItem(story.ID, story.Items[0].ID, 1000, 2000)
	require.NoError(t, err)

	story, err = svc.DuplicateItem(story.ID, story.Items[0].ID)
	require.NoError(t, err)
	require.Len(t, story.Items, 2)

	orig, dup := story.Items[0], story.Items[1]
	assert.Equal(t, orig.EndTimeMs(), dup.StartTimeMs)
	assert.Equal(t, orig.Duration, dup.Duration)
	assert.Equal(t, orig.SourceOffsetMs, dup.SourceOffsetMs)
	assert.Equal(t, orig.GenerationID, dup.GenerationID)
}

func TestDeleteStoryCascades(t *testing.T) {
	svc, _ := newTestService(t, 2.0)
	story, _ := svc.CreateStory("s")
	story, _ = svc.AddItem(story.ID, 1)

	require.NoError(t, svc.DeleteStory(story.ID))
	_, err := svc.GetStory(story.ID)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	var count int64
	require.NoError(t, svc.db.Model(&models.StoryItem{}).Where("story_id = ?", story.ID).Count(&count).Error)
	assert.Zero(t, count, "items must not outlive their story")
}
