package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer decides how long to pause before a feed request. attempt is the
// number of consecutive empty responses seen so far for the current cursor.
type Pacer interface {
	Wait(ctx context.Context, attempt int) error
}

// UniformPacer sleeps a uniformly random duration in [Min, Max] before every
// request, whatever the attempt.
type UniformPacer struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewUniformPacer returns a pacer drawing delays from [min, max].
func NewUniformPacer(min, max time.Duration) *UniformPacer {
	return &UniformPacer{
		Min: min,
		Max: max,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay draws the next pause.
func (p *UniformPacer) Delay() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rnd == nil {
		p.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return p.Min + time.Duration(p.rnd.Int63n(int64(p.Max-p.Min)+1))
}

// Wait sleeps for a random delay or until ctx is done.
func (p *UniformPacer) Wait(ctx context.Context, attempt int) error {
	return Wait(ctx, p.Delay())
}

// NoPacer never sleeps. It still honors cancellation.
type NoPacer struct{}

func (NoPacer) Wait(ctx context.Context, attempt int) error {
	return ctx.Err()
}
