package locker

import (
	"context"
	"sync"
)

// TrxLock lets transformer threads emit their results in event order.
// Event indexes start at 1.
type TrxLock struct {
	mu       sync.Mutex
	cond     *sync.Cond
	eventIdx uint64
}

func NewTrxLock() *TrxLock {
	l := &TrxLock{eventIdx: 1}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *TrxLock) EvIdx() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eventIdx
}

// Wait blocks until idx is the next event to emit. Every successful Wait
// must be followed by Done.
func (l *TrxLock) Wait(ctx context.Context, idx uint64) error {
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	for l.eventIdx != idx {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
	return nil
}

// Done passes the turn to the next event.
func (l *TrxLock) Done() {
	l.mu.Lock()
	l.eventIdx++
	l.mu.Unlock()
	l.cond.Broadcast()
}
