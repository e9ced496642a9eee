package audio

import (
	"fmt"
	"math"
)

// RMS 均方根电平
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Normalize 归一化到目标 RMS 电平并做峰值限制
func Normalize(c *Clip, targetDB, peakLimit float64) *Clip {
	out := make([]float32, len(c.Samples))
	copy(out, c.Samples)

	rms := RMS(out)
	targetRMS := math.Pow(10, targetDB/20)
	if rms > 0 {
		gain := float32(targetRMS / rms)
		for i := range out {
			out[i] *= gain
		}
	}

	limit := float32(peakLimit)
	for i, s := range out {
		if s > limit {
			out[i] = limit
		} else if s < -limit {
			out[i] = -limit
		}
	}
	return &Clip{Samples: out, SampleRate: c.SampleRate}
}

// Resample 线性插值重采样，采样率一致时返回原 Clip
func Resample(c *Clip, targetRate int) *Clip {
	if c.SampleRate == targetRate || len(c.Samples) == 0 {
		return c
	}

	duration := float64(len(c.Samples)) / float64(c.SampleRate)
	targetLength := int(math.Round(duration * float64(targetRate)))
	if targetLength < 1 {
		targetLength = 1
	}
	if targetLength == len(c.Samples) {
		return &Clip{Samples: c.Samples, SampleRate: targetRate}
	}

	out := make([]float32, targetLength)
	ratio := float64(c.SampleRate) / float64(targetRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(c.Samples)-1 {
			out[i] = c.Samples[len(c.Samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = c.Samples[idx]*(1-frac) + c.Samples[idx+1]*frac
	}
	return &Clip{Samples: out, SampleRate: targetRate}
}

// Slice 截取 [startMs, startMs+durMs) 范围，越界部分按实际长度收口
func Slice(c *Clip, startMs, durMs int64) *Clip {
	start := int(startMs * int64(c.SampleRate) / 1000)
	end := int((startMs + durMs) * int64(c.SampleRate) / 1000)
	if start < 0 {
		start = 0
	}
	if end > len(c.Samples) {
		end = len(c.Samples)
	}
	if start >= end {
		return &Clip{Samples: nil, SampleRate: c.SampleRate}
	}
	return &Clip{Samples: c.Samples[start:end], SampleRate: c.SampleRate}
}

// 参考音频校验边界
const (
	minReferenceDuration = 2.0
	maxReferenceDuration = 30.0
	minReferenceRMS      = 0.01
)

// ValidateReference 校验声纹克隆的参考音频：时长、电平、削波
func ValidateReference(c *Clip) error {
	duration := c.Duration()
	if duration < minReferenceDuration {
		return fmt.Errorf("audio too short (minimum %.0f seconds)", minReferenceDuration)
	}
	if duration > maxReferenceDuration {
		return fmt.Errorf("audio too long (maximum %.0f seconds)", maxReferenceDuration)
	}
	if RMS(c.Samples) < minReferenceRMS {
		return fmt.Errorf("audio is too quiet or silent")
	}
	var peak float32
	for _, s := range c.Samples {
		if s > peak {
			peak = s
		} else if -s > peak {
			peak = -s
		}
	}
	if peak > 0.99 {
		return fmt.Errorf("audio is clipping (reduce input gain)")
	}
	return nil
}
