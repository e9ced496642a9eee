package timeline

import (
	"time"

	"github.com/sirupsen/logrus"

	"VoiceboxStudio/pkg/audio"
	"VoiceboxStudio/pkg/errors"
)

// ExportSampleRate 导出混音统一采样率
const ExportSampleRate = audio.DefaultSampleRate

// Exporter 把故事时间轴渲染为一个 WAV 文件
type Exporter struct {
	stories *Service
	gens    GenerationSource

	observe func(elapsed time.Duration)
}

func NewExporter(stories *Service, gens GenerationSource) *Exporter {
	return &Exporter{
		stories: stories,
		gens:    gens,
		observe: func(time.Duration) {},
	}
}

// WithObserver 注册导出耗时观测（指标上报）
func (e *Exporter) WithObserver(fn func(elapsed time.Duration)) *Exporter {
	if fn != nil {
		e.observe = fn
	}
	return e
}

// Export 渲染整条时间轴：每个条目解码、重采样到统一采样率、
// 按源内偏移截取，再叠加到输出缓冲的对应位置。重叠区域逐样本
// 相加，写出时截断到有效范围。空故事导出零长度的合法 WAV。
func (e *Exporter) Export(storyID uint) ([]byte, error) {
	started := time.Now()

	story, err := e.stories.GetStory(storyID)
	if err != nil {
		return nil, err
	}

	var totalMs int64
	for i := range story.Items {
		if end := story.Items[i].EndTimeMs(); end > totalMs {
			totalMs = end
		}
	}

	mix := make([]float32, totalMs*ExportSampleRate/1000)
	for i := range story.Items {
		item := &story.Items[i]

		raw, err := e.gens.Audio(item.GenerationID)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeMissingSource,
				"story item %d: source generation %d is unavailable", item.ID, item.GenerationID)
		}
		clip, err := audio.DecodeWAV(raw)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeMissingSource,
				"story item %d: source audio is corrupt", item.ID)
		}

		clip = audio.Resample(clip, ExportSampleRate)
		clip = audio.Slice(clip, item.SourceOffsetMs, item.DurationMs())

		offset := int(item.StartTimeMs * ExportSampleRate / 1000)
		for j, s := range clip.Samples {
			if offset+j >= len(mix) {
				break
			}
			mix[offset+j] += s
		}
	}

	out := audio.EncodeWAV(audio.NewClip(mix, ExportSampleRate))
	e.observe(time.Since(started))
	logrus.Infof("story %d exported: %d items, %.1fs audio", storyID, len(story.Items), float64(totalMs)/1000)
	return out, nil
}
