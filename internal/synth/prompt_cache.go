package synth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// PromptBuilder 只暴露 prompt 构建这一个面向缓存的能力
type PromptBuilder interface {
	BuildPrompt(ctx context.Context, modelSize string, samples []Sample) (*Prompt, error)
}

// PromptCache 按（档案, 样本集, 模型规格）缓存声纹 prompt。
// 条目写入后不可变；样本变更时整档案失效而不是原地更新。
// 并发未命中通过 singleflight 合并为一次构建。
// 淘汰只影响缓存驻留，已发给运行中任务的 prompt 值不受影响。
type PromptCache struct {
	cache   *lru.Cache[string, *Prompt]
	group   singleflight.Group
	builder PromptBuilder

	idxMu     sync.Mutex
	byProfile map[uint]map[string]struct{} // profileID -> 该档案名下的缓存键

	observe func(outcome string)
}

func NewPromptCache(size int, builder PromptBuilder) (*PromptCache, error) {
	pc := &PromptCache{
		builder:   builder,
		byProfile: make(map[uint]map[string]struct{}),
		observe:   func(string) {},
	}
	c, err := lru.NewWithEvict[string, *Prompt](size, func(key string, _ *Prompt) {
		pc.dropIndex(key)
	})
	if err != nil {
		return nil, err
	}
	pc.cache = c
	return pc, nil
}

// WithObserver 注册命中率观测（指标上报）
func (pc *PromptCache) WithObserver(fn func(outcome string)) *PromptCache {
	if fn != nil {
		pc.observe = fn
	}
	return pc
}

// CacheKey 由档案标识、模型规格和样本内容哈希集合导出缓存键。
// 样本哈希排序后拼接，键与样本顺序无关。
func CacheKey(profileID uint, modelSize string, checksums []string) string {
	sorted := make([]string, len(checksums))
	copy(sorted, checksums)
	sort.Strings(sorted)

	h := sha256.New()
	fmt.Fprintf(h, "profile:%d|model:%s", profileID, modelSize)
	for _, c := range sorted {
		h.Write([]byte("|"))
		h.Write([]byte(c))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetOrBuild 命中返回既有 prompt，未命中构建后写入再返回
func (pc *PromptCache) GetOrBuild(ctx context.Context, profileID uint, modelSize string, samples []Sample) (*Prompt, error) {
	checksums := make([]string, 0, len(samples))
	for _, s := range samples {
		checksums = append(checksums, s.Checksum)
	}
	key := CacheKey(profileID, modelSize, checksums)

	if p, ok := pc.cache.Get(key); ok {
		pc.observe("hit")
		return p, nil
	}
	pc.observe("miss")

	v, err, _ := pc.group.Do(key, func() (interface{}, error) {
		// 排队期间可能已被并发构建写入
		if p, ok := pc.cache.Get(key); ok {
			return p, nil
		}
		p, err := pc.builder.BuildPrompt(ctx, modelSize, samples)
		if err != nil {
			return nil, err
		}
		p.Key = key
		pc.cache.Add(key, p)
		pc.addIndex(profileID, key)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Prompt), nil
}

// Invalidate 丢弃某档案名下的全部缓存条目。
// 档案样本的任何增删改之后、下一次 GetOrBuild 之前必须调用，
// 否则会继续命中过期 prompt —— 这是正确性契约，不只是优化。
func (pc *PromptCache) Invalidate(profileID uint) {
	pc.idxMu.Lock()
	keys := make([]string, 0, len(pc.byProfile[profileID]))
	for k := range pc.byProfile[profileID] {
		keys = append(keys, k)
	}
	delete(pc.byProfile, profileID)
	pc.idxMu.Unlock()

	for _, k := range keys {
		pc.cache.Remove(k)
	}
}

// Len 当前驻留条目数
func (pc *PromptCache) Len() int {
	return pc.cache.Len()
}

func (pc *PromptCache) addIndex(profileID uint, key string) {
	pc.idxMu.Lock()
	defer pc.idxMu.Unlock()
	if pc.byProfile[profileID] == nil {
		pc.byProfile[profileID] = make(map[string]struct{})
	}
	pc.byProfile[profileID][key] = struct{}{}
}

func (pc *PromptCache) dropIndex(key string) {
	pc.idxMu.Lock()
	defer pc.idxMu.Unlock()
	for pid, keys := range pc.byProfile {
		if _, ok := keys[key]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(pc.byProfile, pid)
			}
			return
		}
	}
}
