package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-can-logger/internal/can"
)

// FrameSink accepts frames from a backend reader without blocking.
type FrameSink interface {
	Deliver(can.Frame) error
}

// RxQueue funnels frames from any number of backend readers into one handler
// goroutine. The bounded channel plays the role of the controller's receive
// mailboxes: Deliver never blocks, and when the queue is full the OnDrop hook
// runs and its error is returned.
//
// Besides frames the worker executes flush requests (see Flush), so work
// that must share the handler's state can be triggered from other goroutines
// without locks.
//
// Life-cycle:
//
//	q := NewRxQueue(ctx, buf, handle, hooks)
//	q.Deliver(frame)
//	q.Close()
type RxQueue struct {
	mu     sync.Mutex
	ch     chan can.Frame
	flush  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	handle func(can.Frame)
	hooks  Hooks
	closed atomic.Bool // set when Close is called; prevents enqueue after shutdown
}

// Hooks customize RxQueue behavior.
type Hooks struct {
	// OnDrop is called when the queue is full; its returned error is returned
	// from Deliver. If nil, the overflow is silent.
	OnDrop func() error
	// OnFlush runs on the worker goroutine for each coalesced Flush request.
	OnFlush func()
}

// ErrQueueClosed is returned by Deliver after Close.
var ErrQueueClosed = errors.New("rx queue closed")

// NewRxQueue constructs an RxQueue with a buffered channel of size buf and
// starts its worker.
func NewRxQueue(parent context.Context, buf int, handle func(can.Frame), hooks Hooks) *RxQueue {
	ctx, cancel := context.WithCancel(parent)
	q := &RxQueue{
		ch:     make(chan can.Frame, buf),
		flush:  make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		handle: handle,
		hooks:  hooks,
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *RxQueue) loop() {
	defer q.wg.Done()
	for {
		select {
		case fr, ok := <-q.ch:
			if !ok { // channel closed
				return
			}
			q.handle(fr)
		case <-q.flush:
			if q.hooks.OnFlush != nil {
				q.hooks.OnFlush()
			}
		case <-q.ctx.Done():
			return
		}
	}
}

// Deliver queues a frame for the handler or returns the drop error if the
// queue is full.
func (q *RxQueue) Deliver(fr can.Frame) error {
	// Fast-path check so steady-state delivery avoids the lock after shutdown.
	if q.closed.Load() {
		return ErrQueueClosed
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- fr:
		return nil
	default:
		if q.hooks.OnDrop != nil {
			return q.hooks.OnDrop()
		}
		return nil
	}
}

// Flush asks the worker to run OnFlush. Requests made while one is still
// outstanding are coalesced; Flush never blocks.
func (q *RxQueue) Flush() {
	select {
	case q.flush <- struct{}{}:
	default:
	}
}

// Len returns the number of queued frames.
func (q *RxQueue) Len() int { return len(q.ch) }

// Close stops the worker and waits for it to exit. Queued frames are not
// handled.
func (q *RxQueue) Close() {
	if q.closed.Swap(true) { // already closed
		return
	}
	// Cancel context to stop loop, then close channel under the lock to avoid races.
	q.cancel()
	q.mu.Lock()
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
}

// Done is closed when the worker has stopped.
func (q *RxQueue) Done() <-chan struct{} { return q.ctx.Done() }
