package tasks

import (
	"context"
	"time"
)

// Phase 生成任务所处阶段
type Phase string

const (
	PhasePreparing  Phase = "preparing"
	PhaseGenerating Phase = "generating"
	PhaseSaving     Phase = "saving"
	PhaseComplete   Phase = "complete"
	PhaseFailed     Phase = "failed"
)

// Terminal 是否为终态
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// isValidTransition 阶段只能单向推进；failed 可从任意非终态进入
func isValidTransition(from, to Phase) bool {
	if to == PhaseFailed {
		return !from.Terminal()
	}
	switch from {
	case PhasePreparing:
		return to == PhaseGenerating
	case PhaseGenerating:
		return to == PhaseSaving
	case PhaseSaving:
		return to == PhaseComplete
	default:
		return false
	}
}

// Task 一次进行中的合成请求。只存活在进程内，不跨重启；
// 它的产物 Generation 才是持久的。
type Task struct {
	ID          string
	ProfileID   uint
	Text        string
	TextPreview string
	TextLength  int
	ModelSize   string
	Language    string

	Phase     Phase
	CreatedAt time.Time

	// 至少有一次同规格完成记录后才有估计值，否则保持 nil（进度未知）
	EstimatedDurationSeconds *float64

	ResultGenerationID uint
	ErrKind            string
	ErrMessage         string

	ctx    context.Context
	cancel context.CancelFunc

	terminalAt time.Time
	observed   bool // 终态是否已被轮询看到
}

// Ctx 任务取消上下文
func (t *Task) Ctx() context.Context { return t.ctx }

// View 轮询暴露的只读视图，非权威任务记录
type View struct {
	TaskID                   string   `json:"taskId"`
	Phase                    Phase    `json:"phase"`
	ElapsedSeconds           float64  `json:"elapsedSeconds"`
	EstimatedDurationSeconds *float64 `json:"estimatedDurationSeconds"`
	TextPreview              string   `json:"textPreview"`
	TextLength               int      `json:"textLength"`
	ModelSize                string   `json:"modelSize"`
	ResultGenerationID       uint     `json:"resultGenerationId,omitempty"`
	ErrorKind                string   `json:"errorKind,omitempty"`
	ErrorMessage             string   `json:"errorMessage,omitempty"`
}

func (t *Task) view(now time.Time) View {
	return View{
		TaskID:                   t.ID,
		Phase:                    t.Phase,
		ElapsedSeconds:           now.Sub(t.CreatedAt).Seconds(),
		EstimatedDurationSeconds: t.EstimatedDurationSeconds,
		TextPreview:              t.TextPreview,
		TextLength:               t.TextLength,
		ModelSize:                t.ModelSize,
		ResultGenerationID:       t.ResultGenerationID,
		ErrorKind:                t.ErrKind,
		ErrorMessage:             t.ErrMessage,
	}
}
