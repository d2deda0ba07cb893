// Package kernel implements the per-registry serialization kernel
// described in spec.md §4.1: a single logical writer consuming one
// request at a time from an unbounded FIFO, giving every registry
// linearizable mutations without a registry-wide lock.
//
// The shape is adapted directly from the teacher's
// roothash/memory.runtimeState.worker: a cmdCh of requests consumed by
// one goroutine in a select loop, each request carrying its own reply
// channel. The one structural change is the queue itself: the teacher
// used a plain `chan *commitCmd` with a "XXX: Use an unbound
// channel?" comment; here the queue is genuinely unbounded, using the
// same eapache/channels.InfiniteChannel already wired into
// common/pubsub, since spec.md §5 requires unbounded queues with no
// backpressure.
package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/eapache/channels"

	"github.com/hackmesh/hub/internal/common/logging"
	"github.com/hackmesh/hub/internal/errs"
)

// HandlerFunc applies one request to a registry's in-memory state. It
// runs exclusively on the kernel's worker goroutine: no locking is
// needed between two HandlerFunc invocations, only between a
// HandlerFunc invocation and any direct (unqueued) reader of the same
// state.
type HandlerFunc func(tag string, args interface{}) (interface{}, error)

type request struct {
	tag   string
	args  interface{}
	reply chan reply
}

type reply struct {
	value interface{}
	err   error
}

// Kernel is one registry's single-writer worker plus its request
// queue.
type Kernel struct {
	name    string
	logger  *logging.Logger
	handler HandlerFunc

	queue *channels.InfiniteChannel

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New constructs a Kernel for the named registry. The handler is not
// invoked until Start is called.
func New(name string, handler HandlerFunc) *Kernel {
	return &Kernel{
		name:    name,
		logger:  logging.GetLogger("kernel/" + name),
		handler: handler,
		queue:   channels.NewInfiniteChannel(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start runs loadFn synchronously (this is the kernel's `init`
// operation, spec.md §4.1) and then spawns the worker goroutine. No
// request submitted via Call/Cast can race with loadFn: the queue
// isn't drained until loadFn has returned.
func (k *Kernel) Start(loadFn func() error) error {
	var startErr error
	k.startOnce.Do(func() {
		if loadFn != nil {
			startErr = loadFn()
		}
		if startErr == nil {
			go k.run()
		} else {
			close(k.doneCh)
		}
	})
	return startErr
}

func (k *Kernel) run() {
	defer close(k.doneCh)

	out := k.queue.Out()
	for {
		select {
		case item, ok := <-out:
			if !ok {
				return
			}
			req := item.(*request)
			value, err := k.applySafely(req)
			if req.reply != nil {
				req.reply <- reply{value: value, err: err}
			}
		case <-k.stopCh:
			return
		}
	}
}

// applySafely runs the handler with panic recovery, so a single bad
// request (e.g. a programmer error hitting handler's default/unknown
// tag branch) becomes an error reply instead of taking the worker
// goroutine down with it. This is the reason Kernel has no restart
// path: short of an unrecoverable runtime fault (stack overflow, OOM),
// the loop in run() cannot exit except via Stop().
func (k *Kernel) applySafely(req *request) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			k.logger.Error("kernel: handler panicked, request failed", "tag", req.tag, "panic", r)
			err = fmt.Errorf("kernel: handler panic: %v", r)
		}
	}()
	return k.handler(req.tag, req.args)
}

// Done is closed once the worker goroutine has exited, whether via
// Stop or (in principle, after an unrecoverable runtime fault)
// unexpectedly. Supervisor uses it to distinguish the two.
func (k *Kernel) Done() <-chan struct{} {
	return k.doneCh
}

// Call enqueues a request and blocks until the worker replies or ctx
// is done. A context timeout does NOT guarantee the request was not
// applied — the worker still dequeues and processes it in order; the
// caller has merely stopped waiting (spec.md §4.1, §5).
func (k *Kernel) Call(ctx context.Context, tag string, args interface{}) (interface{}, error) {
	req := &request{tag: tag, args: args, reply: make(chan reply, 1)}

	select {
	case <-ctx.Done():
		return nil, errs.ErrTimeout
	default:
	}

	k.queue.In() <- req

	select {
	case r := <-req.reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, errs.ErrTimeout
	}
}

// Cast enqueues a fire-and-forget request: the worker applies it in
// order with every other request, but the caller does not wait for a
// reply. This is the sole shape used by chat's send_message.
func (k *Kernel) Cast(tag string, args interface{}) {
	k.queue.In() <- &request{tag: tag, args: args}
}

// Stop terminates the worker goroutine. Requests already queued but
// not yet dequeued are dropped; Stop is meant for process shutdown,
// not mid-run pausing.
func (k *Kernel) Stop() {
	k.stopOnce.Do(func() {
		close(k.stopCh)
	})
	<-k.doneCh
}
