package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"VoiceboxStudio/pkg/audio"
	"VoiceboxStudio/pkg/errors"
)

// SidecarBackend 通过 HTTP 调用本机推理 sidecar 进程
type SidecarBackend struct {
	baseURL string
	client  *http.Client
}

func NewSidecarBackend(baseURL string) *SidecarBackend {
	return &SidecarBackend{
		baseURL: baseURL,
		// 合成与模型加载都可能以分钟计，交给调用方 ctx 控制取消
		client: &http.Client{Timeout: 0},
	}
}

func (s *SidecarBackend) post(ctx context.Context, path string, reqBody, respBody interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("sidecar %s returned %d: %s", path, resp.StatusCode, e.Detail)
	}

	logrus.Debugf("sidecar %s took %s", path, time.Since(start))
	if respBody == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (s *SidecarBackend) Load(ctx context.Context, modelSize string) error {
	err := s.post(ctx, "/model/load", map[string]interface{}{"model_size": modelSize}, nil)
	if err != nil {
		return errors.Wrapf(err, errors.CodeModelUnavailable, "failed to load model %s", modelSize)
	}
	return nil
}

func (s *SidecarBackend) Unload(ctx context.Context) error {
	return s.post(ctx, "/model/unload", map[string]interface{}{}, nil)
}

func (s *SidecarBackend) BuildPrompt(ctx context.Context, modelSize string, samples []Sample) (*Prompt, error) {
	type sampleReq struct {
		Audio      string `json:"audio"`
		Transcript string `json:"transcript"`
	}
	req := struct {
		ModelSize string      `json:"model_size"`
		Samples   []sampleReq `json:"samples"`
	}{ModelSize: modelSize}
	for _, sm := range samples {
		req.Samples = append(req.Samples, sampleReq{
			Audio:      base64.StdEncoding.EncodeToString(sm.Audio),
			Transcript: sm.Transcript,
		})
	}

	var resp struct {
		Prompt      string  `json:"prompt"`
		RefDuration float64 `json:"ref_duration"`
	}
	if err := s.post(ctx, "/prompt", req, &resp); err != nil {
		return nil, errors.Wrap(err, errors.CodeSynthesisFailed, "failed to build voice prompt")
	}
	blob, err := base64.StdEncoding.DecodeString(resp.Prompt)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSynthesisFailed, "sidecar returned malformed prompt")
	}
	return &Prompt{Blob: blob, RefDuration: resp.RefDuration}, nil
}

func (s *SidecarBackend) Synthesize(ctx context.Context, text string, prompt *Prompt, params Params) (*audio.Clip, error) {
	req := struct {
		Text     string `json:"text"`
		Prompt   string `json:"prompt"`
		Language string `json:"language"`
		Instruct string `json:"instruct,omitempty"`
		Seed     *int64 `json:"seed,omitempty"`
	}{
		Text:     text,
		Prompt:   base64.StdEncoding.EncodeToString(prompt.Blob),
		Language: params.Language,
		Instruct: params.Instruct,
		Seed:     params.Seed,
	}

	var resp struct {
		Audio      string  `json:"audio"` // wav, base64
		SampleRate int     `json:"sample_rate"`
		Duration   float64 `json:"duration"`
	}
	if err := s.post(ctx, "/synthesize", req, &resp); err != nil {
		return nil, errors.Wrap(err, errors.CodeSynthesisFailed, "synthesis failed")
	}

	wav, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSynthesisFailed, "sidecar returned malformed audio")
	}
	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSynthesisFailed, "sidecar returned undecodable audio")
	}
	return clip, nil
}
