package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	DefaultSampleRate = 24000
	NumChannels       = 1
	BitsPerSample     = 16
)

// Clip 一段单声道 PCM 音频
type Clip struct {
	Samples    []float32
	SampleRate int
}

func NewClip(samples []float32, sampleRate int) *Clip {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Clip{Samples: samples, SampleRate: sampleRate}
}

// Duration 时长（秒）
func (c *Clip) Duration() float64 {
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// DurationMs 时长（毫秒，四舍五入）
func (c *Clip) DurationMs() int64 {
	return int64(math.Round(c.Duration() * 1000))
}

// EncodeWAV 编码为 16bit PCM 单声道 WAV，样本越界时截断到 [-1, 1]
func EncodeWAV(c *Clip) []byte {
	numSamples := len(c.Samples)
	dataSize := numSamples * NumChannels * (BitsPerSample / 8)
	fileSize := 36 + dataSize

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(NumChannels))
	binary.Write(buf, binary.LittleEndian, uint32(c.SampleRate))
	byteRate := c.SampleRate * NumChannels * (BitsPerSample / 8)
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	blockAlign := NumChannels * (BitsPerSample / 8)
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(BitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	for _, sample := range c.Samples {
		clamped := sample
		if clamped > 1.0 {
			clamped = 1.0
		} else if clamped < -1.0 {
			clamped = -1.0
		}
		intSample := int16(clamped * math.MaxInt16)
		binary.Write(buf, binary.LittleEndian, intSample)
	}

	return buf.Bytes()
}

// DecodeWAV 解析 16bit PCM WAV，多声道混合为单声道
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		sampleRate  int
		numChannels int
		bits        int
		pcm         []byte
		haveFmt     bool
	)

	// 逐块扫描，容忍 LIST 等附加块
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			// data 块长度声明超出文件时按实际字节处理
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("malformed fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("unsupported wav format %d, want PCM", format)
			}
			numChannels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}
		// 块按 2 字节对齐
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt {
		return nil, fmt.Errorf("missing fmt chunk")
	}
	if bits != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d, want 16", bits)
	}
	if numChannels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", numChannels)
	}

	frameSize := numChannels * 2
	numFrames := len(pcm) / frameSize
	samples := make([]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		var sum float32
		for ch := 0; ch < numChannels; ch++ {
			p := i*frameSize + ch*2
			v := int16(binary.LittleEndian.Uint16(pcm[p : p+2]))
			sum += float32(v) / math.MaxInt16
		}
		samples[i] = sum / float32(numChannels)
	}

	return &Clip{Samples: samples, SampleRate: sampleRate}, nil
}
