package host

import (
	"container/heap"
	"context"
	"time"

	"github.com/dop251/goja"
)

// minDelay is the smallest timer delay, as in Node: setTimeout(fn, 0) fires
// after 1ms and a zero interval cannot starve the loop.
const minDelay = time.Millisecond

type taskKind int

const (
	kindTimeout taskKind = iota
	kindInterval
	kindImmediate
	kindTick
)

type task struct {
	id       int64
	kind     taskKind
	fn       goja.Callable
	args     []goja.Value
	due      time.Time
	interval time.Duration
	seq      uint64
	index    int
}

// Loop is the task queue of a script host. It doubles as the registry of
// pending work: every scheduled callback is registered until it has run or
// has been cleared, so quiescence is a count of zero rather than a guess.
//
// Loop is not safe for concurrent use; it is driven by the goroutine that owns
// the interpreter.
type Loop struct {
	nextID     int64
	seq        uint64
	ticks      []*task
	immediates []*task
	timers     timerQueue
	scheduled  map[int64]*task // pending timers and immediates by id
}

// NewLoop creates an empty loop
func NewLoop() *Loop {
	return &Loop{scheduled: make(map[int64]*task)}
}

// Pending returns the number of outstanding scheduled callbacks (timers,
// intervals, immediates) and micro-scheduled callbacks (next ticks).
func (l *Loop) Pending() (scheduled int, micro int) {
	return len(l.scheduled), len(l.ticks)
}

func (l *Loop) newTask(kind taskKind, fn goja.Callable, args []goja.Value) *task {
	l.nextID++
	l.seq++
	return &task{id: l.nextID, kind: kind, fn: fn, args: args, seq: l.seq, index: -1}
}

// SetTimeout schedules fn once after delay. An interval greater than zero
// re-arms the timer after every run.
func (l *Loop) SetTimeout(fn goja.Callable, delay time.Duration, interval bool, args []goja.Value) int64 {
	if delay < minDelay {
		delay = minDelay
	}
	kind := kindTimeout
	if interval {
		kind = kindInterval
	}
	t := l.newTask(kind, fn, args)
	t.due = time.Now().Add(delay)
	if interval {
		t.interval = delay
	}
	heap.Push(&l.timers, t)
	l.scheduled[t.id] = t
	return t.id
}

// SetImmediate schedules fn for the next turn of the loop
func (l *Loop) SetImmediate(fn goja.Callable, args []goja.Value) int64 {
	t := l.newTask(kindImmediate, fn, args)
	l.immediates = append(l.immediates, t)
	l.scheduled[t.id] = t
	return t.id
}

// NextTick queues fn to run before any other scheduled work
func (l *Loop) NextTick(fn goja.Callable, args []goja.Value) {
	l.ticks = append(l.ticks, l.newTask(kindTick, fn, args))
}

// Clear cancels a timer, interval or immediate. Unknown ids are ignored.
func (l *Loop) Clear(id int64) {
	t, ok := l.scheduled[id]
	if !ok {
		return
	}
	delete(l.scheduled, id)
	if t.index >= 0 {
		heap.Remove(&l.timers, t.index)
	}
}

// Turn runs one iteration of the loop: next ticks, the immediates queued
// before the turn started, then every timer that is due. When none of these
// had anything to run, Turn sleeps until the earliest timer is due or ctx is
// done. The first callback error stops the turn and is returned; unrun work
// stays queued.
func (l *Loop) Turn(ctx context.Context, call func(*task) error) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}

	ran := 0
	if err := l.drainTicks(call, &ran); err != nil {
		return err
	}

	batch := l.immediates
	l.immediates = nil
	for i, t := range batch {
		if _, ok := l.scheduled[t.id]; !ok {
			continue // cleared
		}
		delete(l.scheduled, t.id)
		ran++
		if err := call(t); err != nil {
			l.immediates = append(batch[i+1:], l.immediates...)
			return err
		}
		if err := l.drainTicks(call, &ran); err != nil {
			l.immediates = append(batch[i+1:], l.immediates...)
			return err
		}
	}

	now := time.Now()
	for l.timers.Len() > 0 && !l.timers[0].due.After(now) {
		t := heap.Pop(&l.timers).(*task)
		if t.kind == kindInterval {
			t.due = now.Add(t.interval)
			heap.Push(&l.timers, t)
		} else {
			delete(l.scheduled, t.id)
		}
		ran++
		if err := call(t); err != nil {
			return err
		}
		if err := l.drainTicks(call, &ran); err != nil {
			return err
		}
	}

	if ran > 0 || l.timers.Len() == 0 || len(l.immediates) > 0 {
		return nil
	}

	wait := time.NewTimer(time.Until(l.timers[0].due))
	defer wait.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-wait.C:
		return nil
	}
}

func (l *Loop) drainTicks(call func(*task) error, ran *int) error {
	for len(l.ticks) > 0 {
		t := l.ticks[0]
		l.ticks = l.ticks[1:]
		*ran++
		if err := call(t); err != nil {
			return err
		}
	}
	return nil
}

// timerQueue orders timers by due time, then by scheduling order
type timerQueue []*task

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
