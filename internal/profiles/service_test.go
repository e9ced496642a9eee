package profiles

import (
	"bytes"
	"fmt"
	"io"
	"sync"
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

// memStore 内存对象存储，测试用
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Read(key string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, 0, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func (m *memStore) Write(key string, r io.Reader, _ int64) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Exists(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

type invalidations struct {
	profiles []uint
}

func (i *invalidations) Invalidate(profileID uint) {
	i.profiles = append(i.profiles, profileID)
}

func newTestService(t *testing.T) (*Service, *memStore, *invalidations) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))

	blobs := newMemStore()
	inv := &invalidations{}
	return NewService(db, blobs, inv), blobs, inv
}

func referenceWAV(t *testing.T, seconds float64) []byte {
	t.Helper()
	n := int(seconds * audio.DefaultSampleRate)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.3 * float32(i%100-50) / 50
	}
	return audio.EncodeWAV(audio.NewClip(samples, audio.DefaultSampleRate))
}

func TestProfileCRUD(t *testing.T) {
	svc, _, _ := newTestService(t)

	p, err := svc.Create("Narrator", "en", "calm male voice")
	require.NoError(t, err)

	_, err = svc.Create("", "en", "")
	assert.Equal(t, errors.CodeInvalidRequest, errors.GetCode(err))

	got, err := svc.Resolve(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Narrator", got.Name)

	_, err = svc.Resolve(99)
	assert.Equal(t, errors.CodeUnknownProfile, errors.GetCode(err))

	updated, err := svc.Update(p.ID, "Storyteller", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Storyteller", updated.Name)
	assert.Equal(t, "en", updated.Language)

	list, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(p.ID))
	_, err = svc.Resolve(p.ID)
	assert.Equal(t, errors.CodeUnknownProfile, errors.GetCode(err))
}

func TestAddSampleValidatesAudio(t *testing.T) {
	svc, blobs, inv := newTestService(t)
	p, _ := svc.Create("Narrator", "en", "")

	sample, err := svc.AddSample(p.ID, referenceWAV(t, 5), "hello world", "samples/ok.wav")
	require.NoError(t, err)
	assert.NotEmpty(t, sample.Checksum)
	assert.InDelta(t, 5000, sample.DurationMs, 10)
	assert.Equal(t, []uint{p.ID}, inv.profiles, "sample add must invalidate prompts")

	exists, _ := blobs.Exists("samples/ok.wav")
	assert.True(t, exists)

	// 过短、非 wav：拒绝且不落库
	_, err = svc.AddSample(p.ID, referenceWAV(t, 1), "short", "samples/short.wav")
	assert.Equal(t, errors.CodeInvalidRequest, errors.GetCode(err))

	_, err = svc.AddSample(p.ID, []byte("not audio"), "junk", "samples/junk.wav")
	assert.Equal(t, errors.CodeInvalidRequest, errors.GetCode(err))

	got, err := svc.Resolve(p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Samples, 1)
}

func TestLoadSamples(t *testing.T) {
	svc, blobs, _ := newTestService(t)
	p, _ := svc.Create("Narrator", "en", "")

	// 无样本的档案不能用于合成
	empty, err := svc.Resolve(p.ID)
	require.NoError(t, err)
	_, err = svc.LoadSamples(empty)
	assert.Equal(t, errors.CodeInvalidRequest, errors.GetCode(err))

	wav := referenceWAV(t, 3)
	_, err = svc.AddSample(p.ID, wav, "hi", "samples/a.wav")
	require.NoError(t, err)

	loaded, err := svc.Resolve(p.ID)
	require.NoError(t, err)
	samples, err := svc.LoadSamples(loaded)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, wav, samples[0].Audio)
	assert.Equal(t, "hi", samples[0].Transcript)
	assert.NotEmpty(t, samples[0].Checksum)

	// 音频对象丢失 → MissingSource
	require.NoError(t, blobs.Delete("samples/a.wav"))
	_, err = svc.LoadSamples(loaded)
	assert.Equal(t, errors.CodeMissingSource, errors.GetCode(err))
}

func TestRemoveSampleInvalidates(t *testing.T) {
	svc, blobs, inv := newTestService(t)
	p, _ := svc.Create("Narrator", "en", "")
	sample, err := svc.AddSample(p.ID, referenceWAV(t, 3), "hi", "samples/a.wav")
	require.NoError(t, err)
	inv.profiles = nil

	require.NoError(t, svc.RemoveSample(p.ID, sample.ID))
	assert.Equal(t, []uint{p.ID}, inv.profiles)

	exists, _ := blobs.Exists("samples/a.wav")
	assert.False(t, exists, "sample blob must be removed")

	err = svc.RemoveSample(p.ID, sample.ID)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestDisplayNameCaches(t *testing.T) {
	svc, _, _ := newTestService(t)
	p, _ := svc.Create("Narrator", "en", "")

	assert.Equal(t, "Narrator", svc.DisplayName(p.ID))
	assert.Equal(t, "", svc.DisplayName(999))

	// 改名后缓存被清理
	_, err := svc.Update(p.ID, "Storyteller", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Storyteller", svc.DisplayName(p.ID))
}
