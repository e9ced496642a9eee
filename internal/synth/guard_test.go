package synth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"VoiceboxStudio/pkg/audio"
	"VoiceboxStudio/pkg/errors"
)

type stubBackend struct {
	mu      sync.Mutex
	loads   []string
	unloads int

	loadErr error
	busy    int32 // Synthesize 并发检测
}

func (b *stubBackend) Load(_ context.Context, size string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadErr != nil {
		return b.loadErr
	}
	b.loads = append(b.loads, size)
	return nil
}

func (b *stubBackend) Unload(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unloads++
	return nil
}

func (b *stubBackend) BuildPrompt(context.Context, string, []Sample) (*Prompt, error) {
	return &Prompt{}, nil
}

func (b *stubBackend) Synthesize(context.Context, string, *Prompt, Params) (*audio.Clip, error) {
	if !atomic.CompareAndSwapInt32(&b.busy, 0, 1) {
		panic("concurrent synthesize")
	}
	time.Sleep(time.Millisecond)
	atomic.StoreInt32(&b.busy, 0)
	return audio.NewClip(nil, audio.DefaultSampleRate), nil
}

func plentyOfMemory() (uint64, error) { return 64 << 30, nil }

func TestGuardLoadsOnFirstAcquire(t *testing.T) {
	backend := &stubBackend{}
	g := NewGuard(backend).WithMemoryProbe(plentyOfMemory)

	h, err := g.Acquire(context.Background(), ModelSizeLarge)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if g.Resident() != ModelSizeLarge {
		t.Fatalf("resident = %q, want %q", g.Resident(), ModelSizeLarge)
	}
	h.Release()

	// 同规格再次获取不重复加载
	h2, err := g.Acquire(context.Background(), ModelSizeLarge)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	h2.Release()
	if len(backend.loads) != 1 {
		t.Fatalf("loads = %v, want exactly one", backend.loads)
	}
	if backend.unloads != 0 {
		t.Fatalf("unloads = %d, want 0", backend.unloads)
	}
}

func TestGuardSwapsOnSizeChange(t *testing.T) {
	backend := &stubBackend{}
	g := NewGuard(backend).WithMemoryProbe(plentyOfMemory)

	h, _ := g.Acquire(context.Background(), ModelSizeLarge)
	h.Release()

	h2, err := g.Acquire(context.Background(), ModelSizeSmall)
	if err != nil {
		t.Fatalf("acquire small: %v", err)
	}
	h2.Release()

	if backend.unloads != 1 {
		t.Fatalf("unloads = %d, want 1 (unload before load)", backend.unloads)
	}
	if len(backend.loads) != 2 || backend.loads[1] != ModelSizeSmall {
		t.Fatalf("loads = %v", backend.loads)
	}
	if g.Resident() != ModelSizeSmall {
		t.Fatalf("resident = %q", g.Resident())
	}
}

func TestGuardSerializesSynthesis(t *testing.T) {
	backend := &stubBackend{}
	g := NewGuard(backend).WithMemoryProbe(plentyOfMemory)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			size := ModelSizeLarge
			if i%2 == 0 {
				size = ModelSizeSmall
			}
			h, err := g.Acquire(context.Background(), size)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer h.Release()
			// stubBackend 在并发进入时 panic
			if _, err := backend.Synthesize(context.Background(), "x", &Prompt{}, Params{}); err != nil {
				t.Errorf("synthesize: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestGuardAcquireCancelled(t *testing.T) {
	backend := &stubBackend{}
	g := NewGuard(backend).WithMemoryProbe(plentyOfMemory)

	h, _ := g.Acquire(context.Background(), ModelSizeLarge)
	defer h.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Acquire(ctx, ModelSizeLarge)
	if err == nil {
		t.Fatal("expected cancellation while waiting for the slot")
	}
	if errors.GetCode(err) != errors.CodeModelUnavailable {
		t.Fatalf("code = %d, want ModelUnavailable", errors.GetCode(err))
	}
}

func TestGuardMemoryFloor(t *testing.T) {
	backend := &stubBackend{}
	g := NewGuard(backend).WithMemoryProbe(func() (uint64, error) { return 1 << 30, nil })

	_, err := g.Acquire(context.Background(), ModelSizeLarge)
	if err == nil {
		t.Fatal("expected memory floor rejection")
	}
	if errors.GetCode(err) != errors.CodeModelUnavailable {
		t.Fatalf("code = %d, want ModelUnavailable", errors.GetCode(err))
	}
	if g.Resident() != "" {
		t.Fatalf("resident = %q, want empty after rejected load", g.Resident())
	}

	// 槽必须已释放，小模型仍可加载
	h, err := g.Acquire(context.Background(), ModelSizeSmall)
	if err != nil {
		t.Fatalf("acquire small after rejection: %v", err)
	}
	h.Release()
}

func TestGuardReleaseIdempotent(t *testing.T) {
	backend := &stubBackend{}
	g := NewGuard(backend).WithMemoryProbe(plentyOfMemory)

	h, _ := g.Acquire(context.Background(), ModelSizeLarge)
	h.Release()
	h.Release() // 第二次必须无副作用

	h2, err := g.Acquire(context.Background(), ModelSizeLarge)
	if err != nil {
		t.Fatalf("acquire after double release: %v", err)
	}
	h2.Release()
}

func TestGuardRejectsUnknownSize(t *testing.T) {
	g := NewGuard(&stubBackend{}).WithMemoryProbe(plentyOfMemory)
	_, err := g.Acquire(context.Background(), "13B")
	if errors.GetCode(err) != errors.CodeInvalidRequest {
		t.Fatalf("code = %d, want InvalidRequest", errors.GetCode(err))
	}
}
