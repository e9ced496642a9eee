package synth

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"VoiceboxStudio/pkg/errors"
	"VoiceboxStudio/pkg/metrics"
)

// 各模型规格加载所需的最小可用内存（字节）
var modelMemoryFloor = map[string]uint64{
	ModelSizeLarge: 5 << 30,
	ModelSizeSmall: 2 << 30,
}

// Guard 串行化对常驻模型的访问：同一时刻只有一个任务处于 generating，
// 规格切换只在无人持有时发生，释放后模型保温不卸载。
type Guard struct {
	slot    chan struct{} // 容量 1 的独占槽
	backend Backend

	mu       sync.Mutex // 保护 resident
	resident string

	availableMemory func() (uint64, error)
	observe         func(size, outcome string)
}

func NewGuard(backend Backend) *Guard {
	g := &Guard{
		slot:            make(chan struct{}, 1),
		backend:         backend,
		availableMemory: metrics.AvailableMemory,
		observe:         func(string, string) {},
	}
	return g
}

// WithObserver 注册模型加载结果观测（指标上报）
func (g *Guard) WithObserver(fn func(size, outcome string)) *Guard {
	if fn != nil {
		g.observe = fn
	}
	return g
}

// WithMemoryProbe 替换可用内存探测
func (g *Guard) WithMemoryProbe(fn func() (uint64, error)) *Guard {
	if fn != nil {
		g.availableMemory = fn
	}
	return g
}

// Handle 持有独占槽的凭证，Release 幂等
type Handle struct {
	guard *Guard
	size  string
	once  sync.Once
}

// Acquire 获取指定规格模型的独占访问权。已常驻同规格时仅抢占独占槽；
// 常驻不同规格时先卸载再加载。ctx 取消时放弃排队。
func (g *Guard) Acquire(ctx context.Context, modelSize string) (*Handle, error) {
	if !KnownModelSize(modelSize) {
		return nil, errors.WithCodef(errors.CodeInvalidRequest, "unknown model size: %s", modelSize)
	}

	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.CodeModelUnavailable, "cancelled while waiting for model")
	}

	if err := g.ensureResident(ctx, modelSize); err != nil {
		<-g.slot
		g.observe(modelSize, "error")
		return nil, err
	}
	return &Handle{guard: g, size: modelSize}, nil
}

// ensureResident 调用方必须已持有独占槽
func (g *Guard) ensureResident(ctx context.Context, modelSize string) error {
	g.mu.Lock()
	resident := g.resident
	g.mu.Unlock()

	if resident == modelSize {
		return nil
	}

	if resident != "" {
		logrus.Infof("swapping model %s -> %s", resident, modelSize)
		if err := g.backend.Unload(ctx); err != nil {
			// 卸载失败不可恢复地占着内存，按不可用处理
			return errors.Wrapf(err, errors.CodeModelUnavailable, "failed to unload model %s", resident)
		}
		g.mu.Lock()
		g.resident = ""
		g.mu.Unlock()
	}

	if avail, err := g.availableMemory(); err == nil {
		if floor, ok := modelMemoryFloor[modelSize]; ok && avail < floor {
			return errors.WithCodef(errors.CodeModelUnavailable,
				"insufficient memory for model %s: %d MiB available", modelSize, avail>>20)
		}
	}

	if err := g.backend.Load(ctx, modelSize); err != nil {
		if errors.GetCode(err) == errors.CodeModelUnavailable {
			return err
		}
		return errors.Wrapf(err, errors.CodeModelUnavailable, "failed to load model %s", modelSize)
	}

	g.mu.Lock()
	g.resident = modelSize
	g.mu.Unlock()
	g.observe(modelSize, "ok")
	return nil
}

// Release 释放独占槽；模型保持常驻
func (h *Handle) Release() {
	h.once.Do(func() {
		<-h.guard.slot
	})
}

// ModelSize 本次持有的模型规格
func (h *Handle) ModelSize() string { return h.size }

// Resident 当前常驻的模型规格，空串表示未加载
func (g *Guard) Resident() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resident
}
