package tasks

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"VoiceboxStudio/internal/models"
	"VoiceboxStudio/internal/store"
	"VoiceboxStudio/internal/synth"
	"VoiceboxStudio/pkg/audio"
	"VoiceboxStudio/pkg/errors"
)

// 合成结果统一做响度归一化后再落库
const (
	normalizeTargetDB  = -20.0
	normalizePeakLimit = 0.85
)

// ProfileResolver 档案协作方
type ProfileResolver interface {
	Resolve(id uint) (*models.VoiceProfile, error)
	LoadSamples(p *models.VoiceProfile) ([]synth.Sample, error)
}

// PromptProvider 声纹缓存
type PromptProvider interface {
	GetOrBuild(ctx context.Context, profileID uint, modelSize string, samples []synth.Sample) (*synth.Prompt, error)
}

// ModelGuard 常驻模型的独占访问
type ModelGuard interface {
	Acquire(ctx context.Context, modelSize string) (*synth.Handle, error)
}

// Synthesizer 合成调用
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, prompt *synth.Prompt, params synth.Params) (*audio.Clip, error)
}

// GenerationSaver 生成结果存储
type GenerationSaver interface {
	Save(clip *audio.Clip, meta store.SaveMeta) (*models.Generation, error)
}

// DisplayNamer 冗余展示字段来源
type DisplayNamer interface {
	DisplayName(id uint) string
}

// Runner 把一次提交编排为完整的任务生命周期：
// preparing（解析档案、取 prompt、占模型）→ generating → saving → 终态。
// 成功恰好写一次生成存储，失败或取消零写入。
type Runner struct {
	manager  *Manager
	profiles ProfileResolver
	names    DisplayNamer
	prompts  PromptProvider
	guard    ModelGuard
	backend  Synthesizer
	saver    GenerationSaver

	maxTextLength    int
	defaultModelSize string

	observe func(status, modelSize string, elapsed time.Duration)
}

func NewRunner(
	manager *Manager,
	profiles ProfileResolver,
	names DisplayNamer,
	prompts PromptProvider,
	guard ModelGuard,
	backend Synthesizer,
	saver GenerationSaver,
	maxTextLength int,
	defaultModelSize string,
) *Runner {
	if maxTextLength <= 0 {
		maxTextLength = 5000
	}
	return &Runner{
		manager:          manager,
		profiles:         profiles,
		names:            names,
		prompts:          prompts,
		guard:            guard,
		backend:          backend,
		saver:            saver,
		maxTextLength:    maxTextLength,
		defaultModelSize: defaultModelSize,
		observe:          func(string, string, time.Duration) {},
	}
}

// WithObserver 注册任务结果观测（指标上报）
func (r *Runner) WithObserver(fn func(status, modelSize string, elapsed time.Duration)) *Runner {
	if fn != nil {
		r.observe = fn
	}
	return r
}

// SubmitRequest 一次合成请求
type SubmitRequest struct {
	Text      string `json:"text"`
	ProfileID uint   `json:"profileId"`
	Language  string `json:"language"`
	ModelSize string `json:"modelSize"`
	Instruct  string `json:"instruct"`
	Seed      *int64 `json:"seed"`
}

// Submit 校验请求并启动异步任务，返回任务标识。
// 校验失败在这里同步拒绝，之后的失败只通过轮询暴露。
func (r *Runner) Submit(req SubmitRequest) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", errors.WithCode(errors.CodeInvalidRequest, "text must not be empty")
	}
	if len([]rune(text)) > r.maxTextLength {
		return "", errors.WithCodef(errors.CodeInvalidRequest,
			"text too long: %d characters (limit %d)", len([]rune(text)), r.maxTextLength)
	}

	modelSize := req.ModelSize
	if modelSize == "" {
		modelSize = r.defaultModelSize
	}
	if !synth.KnownModelSize(modelSize) {
		return "", errors.WithCodef(errors.CodeInvalidRequest, "unknown model size: %s", modelSize)
	}

	profile, err := r.profiles.Resolve(req.ProfileID)
	if err != nil {
		return "", err
	}

	language := req.Language
	if language == "" {
		language = profile.Language
	}

	t := r.manager.Create(text, profile.ID, modelSize, language)
	go r.run(t, profile, req.Instruct, req.Seed)
	return t.ID, nil
}

func (r *Runner) run(t *Task, profile *models.VoiceProfile, instruct string, seed *int64) {
	defer func() {
		if rec := recover(); rec != nil {
			logrus.Errorf("task %s panicked: %v", t.ID, rec)
			r.fail(t, errors.WithCodef(errors.CodeInternal, "internal error"))
		}
	}()

	ctx := t.Ctx()

	// preparing：样本、prompt、模型，全部就绪才进入 generating
	samples, err := r.profiles.LoadSamples(profile)
	if err != nil {
		r.fail(t, err)
		return
	}

	prompt, err := r.prompts.GetOrBuild(ctx, profile.ID, t.ModelSize, samples)
	if err != nil {
		r.fail(t, err)
		return
	}

	handle, err := r.guard.Acquire(ctx, t.ModelSize)
	if err != nil {
		r.fail(t, err)
		return
	}

	if err := r.manager.Transition(t.ID, PhaseGenerating); err != nil {
		handle.Release()
		return
	}
	r.manager.SetEstimate(t.ID)

	clip, err := r.backend.Synthesize(ctx, t.Text, prompt, synth.Params{
		Language:  t.Language,
		ModelSize: t.ModelSize,
		Instruct:  instruct,
		Seed:      seed,
	})
	handle.Release()
	if err != nil {
		r.fail(t, err)
		return
	}

	// 取消后抑制结果：不落库
	if ctx.Err() != nil {
		logrus.Debugf("task %s cancelled, result discarded", t.ID)
		return
	}

	if err := r.manager.Transition(t.ID, PhaseSaving); err != nil {
		return
	}

	clip = audio.Normalize(clip, normalizeTargetDB, normalizePeakLimit)
	gen, err := r.saver.Save(clip, store.SaveMeta{
		ProfileID:   profile.ID,
		ProfileName: r.names.DisplayName(profile.ID),
		Text:        t.Text,
		Language:    t.Language,
		ModelSize:   t.ModelSize,
		Seed:        seed,
	})
	if err != nil {
		r.fail(t, errors.Wrap(err, errors.CodeInternal, "failed to persist generation"))
		return
	}

	r.manager.Complete(t.ID, gen.ID)
	r.observe("complete", t.ModelSize, time.Since(t.CreatedAt))
	logrus.Infof("task %s complete: generation %d (%.1fs audio)", t.ID, gen.ID, gen.Duration)
}

func (r *Runner) fail(t *Task, err error) {
	if t.Ctx().Err() != nil {
		// 已取消的任务不再报失败
		return
	}
	logrus.Warnf("task %s failed: %v", t.ID, err)
	r.manager.Fail(t.ID, errors.Kind(err), errors.GetMessage(err))
	r.observe("failed", t.ModelSize, time.Since(t.CreatedAt))
}
