package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// Job 周期性维护任务（终态任务清理等）
type Job interface {
	Run(ctx context.Context)
}

// JobFunc 函数适配器
type JobFunc func(ctx context.Context)

func (f JobFunc) Run(ctx context.Context) { f(ctx) }

type Cron struct {
	c   *cron.Cron
	loc *time.Location
}

func NewCron(loc *time.Location) *Cron {
	if loc == nil {
		loc = time.Local
	}
	// 秒级表达式：清扫间隔短于一分钟
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)
	return &Cron{c: c, loc: loc}
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { ctx := cr.c.Stop(); <-ctx.Done() }

func (cr *Cron) Add(expr string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() { job.Run(context.Background()) })
}

func (cr *Cron) AddWithCtx(expr string, fn func(ctx context.Context)) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() { fn(context.Background()) })
}

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }
