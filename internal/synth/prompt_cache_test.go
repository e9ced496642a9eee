package synth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBuilder struct {
	builds int64
	block  chan struct{} // 非空时构建会阻塞到其关闭
}

func (b *countingBuilder) BuildPrompt(_ context.Context, modelSize string, samples []Sample) (*Prompt, error) {
	atomic.AddInt64(&b.builds, 1)
	if b.block != nil {
		<-b.block
	}
	return &Prompt{Blob: []byte(modelSize)}, nil
}

func sampleSet(checksums ...string) []Sample {
	out := make([]Sample, 0, len(checksums))
	for _, c := range checksums {
		out = append(out, Sample{Checksum: c})
	}
	return out
}

func TestCacheKeyOrderIndependent(t *testing.T) {
	a := CacheKey(1, ModelSizeLarge, []string{"x", "y", "z"})
	b := CacheKey(1, ModelSizeLarge, []string{"z", "x", "y"})
	assert.Equal(t, a, b, "key must not depend on sample order")

	assert.NotEqual(t, a, CacheKey(2, ModelSizeLarge, []string{"x", "y", "z"}))
	assert.NotEqual(t, a, CacheKey(1, ModelSizeSmall, []string{"x", "y", "z"}))
	assert.NotEqual(t, a, CacheKey(1, ModelSizeLarge, []string{"x", "y"}))
}

func TestPromptCacheHit(t *testing.T) {
	builder := &countingBuilder{}
	pc, err := NewPromptCache(4, builder)
	require.NoError(t, err)

	var outcomes []string
	pc.WithObserver(func(o string) { outcomes = append(outcomes, o) })

	p1, err := pc.GetOrBuild(context.Background(), 1, ModelSizeLarge, sampleSet("a", "b"))
	require.NoError(t, err)
	p2, err := pc.GetOrBuild(context.Background(), 1, ModelSizeLarge, sampleSet("b", "a"))
	require.NoError(t, err)

	assert.Same(t, p1, p2, "hit must return the owned entry value")
	assert.Equal(t, int64(1), atomic.LoadInt64(&builder.builds))
	assert.Equal(t, []string{"miss", "hit"}, outcomes)
}

func TestPromptCacheSingleflight(t *testing.T) {
	builder := &countingBuilder{block: make(chan struct{})}
	pc, err := NewPromptCache(4, builder)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*Prompt, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := pc.GetOrBuild(context.Background(), 1, ModelSizeLarge, sampleSet("a"))
			require.NoError(t, err)
			results[i] = p
		}(i)
	}

	close(builder.block)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&builder.builds), "concurrent misses must collapse to one build")
	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestPromptCacheInvalidate(t *testing.T) {
	builder := &countingBuilder{}
	pc, err := NewPromptCache(8, builder)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = pc.GetOrBuild(ctx, 1, ModelSizeLarge, sampleSet("a"))
	require.NoError(t, err)
	_, err = pc.GetOrBuild(ctx, 1, ModelSizeSmall, sampleSet("a"))
	require.NoError(t, err)
	_, err = pc.GetOrBuild(ctx, 2, ModelSizeLarge, sampleSet("b"))
	require.NoError(t, err)
	require.Equal(t, 3, pc.Len())

	// 档案 1 的两个条目全部失效，档案 2 不受影响
	pc.Invalidate(1)
	assert.Equal(t, 1, pc.Len())

	_, err = pc.GetOrBuild(ctx, 2, ModelSizeLarge, sampleSet("b"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), atomic.LoadInt64(&builder.builds), "profile 2 must still hit")

	_, err = pc.GetOrBuild(ctx, 1, ModelSizeLarge, sampleSet("a"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), atomic.LoadInt64(&builder.builds), "profile 1 must rebuild")
}

func TestPromptCacheEviction(t *testing.T) {
	builder := &countingBuilder{}
	pc, err := NewPromptCache(2, builder)
	require.NoError(t, err)

	ctx := context.Background()
	held, err := pc.GetOrBuild(ctx, 1, ModelSizeLarge, sampleSet("a"))
	require.NoError(t, err)

	// 挤掉最旧条目
	for i := 2; i <= 3; i++ {
		_, err := pc.GetOrBuild(ctx, uint(i), ModelSizeLarge, sampleSet(fmt.Sprintf("c%d", i)))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, pc.Len())

	// 已被持有的值不受淘汰影响
	assert.Equal(t, []byte(ModelSizeLarge), held.Blob)

	// 被淘汰条目的索引也被清理：失效不 panic 且重建
	pc.Invalidate(1)
	_, err = pc.GetOrBuild(ctx, 1, ModelSizeLarge, sampleSet("a"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), atomic.LoadInt64(&builder.builds))
}
