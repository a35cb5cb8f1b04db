package governor

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// rateWindow is a sliding log of admitted call starts. Starts older than the
// period are pruned lazily on every reservation.
type rateWindow struct {
	mu     sync.Mutex
	limit  int
	period time.Duration
	starts []time.Time
}

func newRateWindow(limit int, period time.Duration) *rateWindow {
	return &rateWindow{
		limit:  limit,
		period: period,
		starts: make([]time.Time, 0, limit),
	}
}

// reserve records now as an admission when fewer than limit starts happened in
// the trailing period. Otherwise it returns how long until the oldest start
// leaves the window.
func (w *rateWindow) reserve(now time.Time) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.limit <= 0 {
		return 0, true
	}

	w.prune(now)
	if len(w.starts) < w.limit {
		w.starts = append(w.starts, now)
		return 0, true
	}

	wait := w.period - now.Sub(w.starts[0])
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

func (w *rateWindow) prune(now time.Time) {
	i := 0
	for i < len(w.starts) && now.Sub(w.starts[i]) >= w.period {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(w.starts, w.starts[i:])
	w.starts = w.starts[:n]
}

// size returns the number of starts inside the trailing period at now.
func (w *rateWindow) size(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	return len(w.starts)
}

// wait blocks until a start can be admitted or ctx is done.
func (w *rateWindow) wait(ctx context.Context, clk clock.Clock) error {
	for {
		d, ok := w.reserve(clk.Now())
		if ok {
			return nil
		}
		if err := sleep(ctx, clk, d); err != nil {
			return err
		}
	}
}

// sleep waits for d on clk, returning early with ctx.Err() when ctx is done.
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
