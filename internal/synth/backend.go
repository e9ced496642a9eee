package synth

import (
	"context"

	"VoiceboxStudio/pkg/audio"
)

// 可加载的模型规格
const (
	ModelSizeLarge = "1.7B"
	ModelSizeSmall = "0.6B"
)

// KnownModelSize 是否为可加载的模型规格
func KnownModelSize(size string) bool {
	return size == ModelSizeLarge || size == ModelSizeSmall
}

// Prompt 由参考音频预计算出的声纹条件数据。对本核心不透明，
// 值一旦构建不再修改，可被多个任务同时持有。
type Prompt struct {
	Key         string  `json:"key"`
	Blob        []byte  `json:"blob"`
	RefDuration float64 `json:"refDuration"` // 参考音频总时长，秒
}

// Sample 构建 prompt 所需的一条参考样本
type Sample struct {
	Audio      []byte // wav 字节
	Transcript string
	Checksum   string // 内容哈希，参与缓存键
}

// Params 合成参数
type Params struct {
	Language  string
	ModelSize string
	Instruct  string // 语气/风格的自然语言指令，可空
	Seed      *int64
}

// Backend 合成后端。推理本身在 sidecar 进程内完成，这里只是调用方；
// 模型非线程安全，Load/Unload/Synthesize 的互斥由 Guard 保证。
type Backend interface {
	Load(ctx context.Context, modelSize string) error
	Unload(ctx context.Context) error
	BuildPrompt(ctx context.Context, modelSize string, samples []Sample) (*Prompt, error)
	Synthesize(ctx context.Context, text string, prompt *Prompt, params Params) (*audio.Clip, error)
}
