package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const previewLength = 50

// Manager 跟踪所有活动中的生成任务。
// 轮询走快照读，高频调用不会阻塞任务执行；状态只存内存，不跨重启。
type Manager struct {
	mu    sync.RWMutex
	tasks map[string]*Task

	// 各模型规格的历史速度（字符/秒），滑动平均
	stats map[string]float64

	retention time.Duration

	notify        func(View) // 阶段变化推送（SSE），可为空
	observeActive func(int)  // 活动任务数观测（指标），可为空
}

func NewManager(retention time.Duration) *Manager {
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	return &Manager{
		tasks:     make(map[string]*Task),
		stats:     make(map[string]float64),
		retention: retention,
	}
}

// WithNotifier 注册阶段变化回调
func (m *Manager) WithNotifier(fn func(View)) *Manager {
	m.notify = fn
	return m
}

// WithActiveObserver 注册活动任务数观测
func (m *Manager) WithActiveObserver(fn func(int)) *Manager {
	m.observeActive = fn
	return m
}

// Create 接受请求并登记一个 preparing 状态的新任务
func (m *Manager) Create(text string, profileID uint, modelSize, language string) *Task {
	preview := text
	if len([]rune(text)) > previewLength {
		preview = string([]rune(text)[:previewLength]) + "..."
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		ID:          uuid.NewString(),
		ProfileID:   profileID,
		Text:        text,
		TextPreview: preview,
		TextLength:  len([]rune(text)),
		ModelSize:   modelSize,
		Language:    language,
		Phase:       PhasePreparing,
		CreatedAt:   time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}

	m.mu.Lock()
	m.tasks[t.ID] = t
	n := len(m.tasks)
	m.mu.Unlock()

	m.reportActive(n)
	m.publish(t)
	return t
}

// Transition 推进任务阶段；阶段只能单向移动，回退是编程错误
func (m *Manager) Transition(id string, phase Phase) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("task %s not found", id)
	}
	if t.Phase == phase {
		m.mu.Unlock()
		return nil
	}
	if !isValidTransition(t.Phase, phase) {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition: %s -> %s", t.Phase, phase)
	}
	t.Phase = phase
	if phase.Terminal() {
		t.terminalAt = time.Now()
	}
	m.mu.Unlock()

	m.publish(t)
	return nil
}

// SetEstimate 基于历史速度填充预计耗时；无历史数据时保持 nil
func (m *Manager) SetEstimate(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return
	}
	rate, ok := m.stats[t.ModelSize]
	if !ok || rate <= 0 {
		return
	}
	est := float64(t.TextLength) / rate
	if est < 2 {
		est = 2
	}
	t.EstimatedDurationSeconds = &est
}

// Complete 标记任务完成并更新该模型规格的速度统计
func (m *Manager) Complete(id string, generationID uint) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if !isValidTransition(t.Phase, PhaseComplete) {
		m.mu.Unlock()
		logrus.Warnf("task %s: cannot complete from %s", id, t.Phase)
		return
	}
	t.Phase = PhaseComplete
	t.ResultGenerationID = generationID
	t.terminalAt = time.Now()

	// 滑动平均：新样本 70%，历史 30%
	elapsed := t.terminalAt.Sub(t.CreatedAt).Seconds()
	if elapsed > 0 && t.TextLength > 0 {
		rate := float64(t.TextLength) / elapsed
		if old, ok := m.stats[t.ModelSize]; ok {
			rate = 0.7*rate + 0.3*old
		}
		m.stats[t.ModelSize] = rate
	}
	m.mu.Unlock()

	m.publish(t)
}

// Fail 将任务置为 failed 并附上错误种类；可从任意非终态进入
func (m *Manager) Fail(id, kind, message string) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok || t.Phase.Terminal() {
		m.mu.Unlock()
		return
	}
	t.Phase = PhaseFailed
	t.ErrKind = kind
	t.ErrMessage = message
	t.terminalAt = time.Now()
	m.mu.Unlock()

	m.publish(t)
}

// Snapshot 返回全部活动任务的只读视图。终态任务标记为已观察，
// 等待下一轮清扫回收。适合 1Hz 级别的高频轮询。
func (m *Manager) Snapshot() []View {
	now := time.Now()

	m.mu.Lock()
	views := make([]View, 0, len(m.tasks))
	for _, t := range m.tasks {
		views = append(views, t.view(now))
		if t.Phase.Terminal() {
			t.observed = true
		}
	}
	m.mu.Unlock()

	sort.Slice(views, func(i, j int) bool { return views[i].TaskID < views[j].TaskID })
	return views
}

// Get 单任务视图
func (m *Manager) Get(id string) (View, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return View{}, false
	}
	return t.view(time.Now()), true
}

// Cancel 尽力而为的取消：任务立即从轮询集合移除、结果被抑制；
// 已交给合成后端的工作不保证中断。
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if ok {
		delete(m.tasks, id)
	}
	n := len(m.tasks)
	m.mu.Unlock()

	if !ok {
		return false
	}
	t.cancel()
	m.reportActive(n)
	logrus.Infof("task %s cancelled", id)
	return true
}

// Sweep 回收终态任务：已被观察到，或超过保留窗口。返回回收数量。
func (m *Manager) Sweep() int {
	now := time.Now()

	m.mu.Lock()
	removed := 0
	for id, t := range m.tasks {
		if !t.Phase.Terminal() {
			continue
		}
		if t.observed || now.Sub(t.terminalAt) > m.retention {
			t.cancel()
			delete(m.tasks, id)
			removed++
		}
	}
	n := len(m.tasks)
	m.mu.Unlock()

	if removed > 0 {
		m.reportActive(n)
		logrus.Debugf("swept %d finished tasks", removed)
	}
	return removed
}

// Rate 某模型规格的历史速度（字符/秒），无记录返回 0
func (m *Manager) Rate(modelSize string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats[modelSize]
}

func (m *Manager) publish(t *Task) {
	if m.notify == nil {
		return
	}
	m.mu.RLock()
	v := t.view(time.Now())
	m.mu.RUnlock()
	m.notify(v)
}

func (m *Manager) reportActive(n int) {
	if m.observeActive != nil {
		m.observeActive(n)
	}
}
