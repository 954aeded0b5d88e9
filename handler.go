package framepipe

import (
	"fmt"
	"sync"
)

// DefaultBufferCapacity is the reservation depth EnableAllocator uses when
// the caller does not specify one.
const DefaultBufferCapacity = 4

// Stage is the concrete compute step driven by a Handler. The handler owns
// configuration, buffer-pool lifecycle and completion reporting; the stage
// owns the transform itself.
type Stage interface {
	// ConfigureResource validates and derives the stage's resource
	// requirements from the first request. It runs once, before any work
	// is dispatched. Stages that produce output typically derive the
	// handler's output video info here via Handler.SetOutVideoInfo.
	ConfigureResource(h *Handler, p *Parameters) error

	// StartWork executes or submits the transform for one request.
	//
	// When the returned done channel is nil, the work completed
	// synchronously with err as its final status. A non-nil done channel
	// receives exactly one status when device-side work finishes; err
	// must then be nil. A non-nil err with a non-nil done channel is
	// treated as a synchronous failure and the channel is ignored.
	StartWork(h *Handler, p *Parameters) (done <-chan error, err error)
}

// AllocatorCreator is an optional Stage interface for stages that need a
// custom output buffer pool (e.g., device-memory backed). When absent the
// handler creates a plain BufferPool. The returned pool may already hold
// its reservation; otherwise the handler reserves it.
type AllocatorCreator interface {
	CreateAllocator(info VideoBufferInfo, count uint32) (*BufferPool, error)
}

// StageTerminator is an optional Stage interface for stages holding device
// resources (command queues, worker goroutines) that must be released when
// the handler terminates.
type StageTerminator interface {
	TerminateStage() error
}

// Callback receives the final status of one request. It is invoked exactly
// once per request that reached the stage's StartWork, never zero times and
// never twice. A Callback may be shared across handlers and must then be
// safe for concurrent invocation.
type Callback interface {
	ExecuteStatus(h *Handler, p *Parameters, err error)
}

// CallbackFunc adapts a function to the Callback interface.
type CallbackFunc func(h *Handler, p *Parameters, err error)

// ExecuteStatus implements Callback.
func (f CallbackFunc) ExecuteStatus(h *Handler, p *Parameters, err error) { f(h, p, err) }

// handlerState tracks the one-way handler lifecycle.
type handlerState int

const (
	// stateUnconfigured: no request has configured the stage yet.
	stateUnconfigured handlerState = iota

	// stateConfigured: resources derived, requests flow.
	stateConfigured

	// stateTerminated: allocator released, no further execution accepted.
	stateTerminated
)

// request tracks one in-flight asynchronous invocation.
type request struct {
	params *Parameters
	done   <-chan error
}

// Handler orchestrates configuration, output buffer-pool ownership,
// execution dispatch and completion reporting for one processing stage.
//
// A handler is driven by a single caller goroutine. The stage may overlap
// device work with the caller when requests are submitted asynchronously;
// the handler itself spawns no goroutines. Completion of asynchronous work
// is observed when later Execute/Submit calls reap the queue and when
// Finish drains it.
type Handler struct {
	name  string
	stage Stage

	mu              sync.Mutex
	state           handlerState
	callback        Callback
	outInfo         VideoBufferInfo
	allocator       *BufferPool
	bufCapacity     uint32
	enableAllocator bool
	inflight        []*request
}

// NewHandler creates a handler around the given stage. The handler starts
// Unconfigured; the first Execute or Submit configures it.
func NewHandler(name string, stage Stage) *Handler {
	return &Handler{
		name:        name,
		stage:       stage,
		bufCapacity: DefaultBufferCapacity,
	}
}

// Name returns the handler name used in logs and errors.
func (h *Handler) Name() string {
	return h.name
}

// SetCallback registers the completion callback. The handler holds a
// shared reference; the callback's lifetime may exceed one invocation.
func (h *Handler) SetCallback(cb Callback) {
	h.mu.Lock()
	h.callback = cb
	h.mu.Unlock()
}

// Callback returns the registered completion callback, or nil.
func (h *Handler) Callback() Callback {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.callback
}

// SetOutVideoInfo records the output buffer descriptor used when this
// handler creates its own pool. It must be set — directly or by the stage
// during ConfigureResource — before the first request when the allocator
// is enabled.
func (h *Handler) SetOutVideoInfo(info VideoBufferInfo) error {
	if !info.Valid() {
		return fmt.Errorf("%w: handler %q: invalid output video info", ErrInvalidParam, h.name)
	}
	h.mu.Lock()
	h.outInfo = info
	h.mu.Unlock()
	return nil
}

// OutVideoInfo returns the recorded output buffer descriptor.
func (h *Handler) OutVideoInfo() VideoBufferInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outInfo
}

// EnableAllocator declares whether the handler owns an output buffer pool
// and, if so, its reservation depth. Zero count selects
// DefaultBufferCapacity. The pool itself is created lazily the first time
// resources are configured.
func (h *Handler) EnableAllocator(enable bool, count uint32) {
	if count == 0 {
		count = DefaultBufferCapacity
	}
	h.mu.Lock()
	h.enableAllocator = enable
	h.bufCapacity = count
	h.mu.Unlock()
}

// Allocator returns the handler-owned output pool, or nil before the first
// configuration (and after Terminate).
func (h *Handler) Allocator() *BufferPool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocator
}

// ReserveBuffers pre-allocates count output buffers matching info in the
// handler-owned pool, creating the pool on first use. Reservation is
// all-or-nothing; a failure is fatal for this handler instance and is not
// retried.
func (h *Handler) ReserveBuffers(info VideoBufferInfo, count uint32) error {
	h.mu.Lock()
	alloc := h.allocator
	h.mu.Unlock()

	if alloc == nil {
		var err error
		if ac, ok := h.stage.(AllocatorCreator); ok {
			alloc, err = ac.CreateAllocator(info, count)
			if err != nil {
				return fmt.Errorf("%w: handler %q: %w", ErrAllocation, h.name, err)
			}
			if alloc == nil {
				return fmt.Errorf("%w: handler %q: stage returned no allocator", ErrAllocation, h.name)
			}
		} else {
			alloc = NewBufferPool(h.name + "-out")
		}
		h.mu.Lock()
		h.allocator = alloc
		h.mu.Unlock()
	}

	if !alloc.Reserved() {
		if err := alloc.Reserve(info, count); err != nil {
			return fmt.Errorf("%w: handler %q: %w", ErrAllocation, h.name, err)
		}
	}
	return nil
}

// FreeBuffer acquires one buffer from the handler-owned pool. Under pool
// exhaustion it returns ErrPoolExhausted; the caller may retry or wait.
func (h *Handler) FreeBuffer() (*Buffer, error) {
	h.mu.Lock()
	alloc := h.allocator
	h.mu.Unlock()
	if alloc == nil {
		return nil, fmt.Errorf("%w: handler %q owns no allocator", ErrInvalidParam, h.name)
	}
	return alloc.GetFree()
}

// Execute runs one request synchronously: it blocks until the stage and
// any device-side completion are observed, drives the status check, and
// returns the final status.
//
// The first call configures the stage; a configuration failure aborts the
// call, is returned synchronously and fires no callback. The same applies
// to invalid arguments and output-pool exhaustion. Once the request
// reaches the stage, its final status is reported through the callback
// exactly once and returned.
func (h *Handler) Execute(p *Parameters) error {
	return h.execute(p, true)
}

// Submit runs one request asynchronously: it returns once the work has
// been submitted to the stage. Completion is observed out-of-band — later
// Execute/Submit calls reap finished requests in submission order, and
// Finish drains everything outstanding. Exactly one callback fires per
// submitted request.
func (h *Handler) Submit(p *Parameters) error {
	return h.execute(p, false)
}

func (h *Handler) execute(p *Parameters, sync bool) error {
	if p == nil || p.In == nil {
		return fmt.Errorf("%w: handler %q: missing input buffer", ErrInvalidParam, h.name)
	}

	h.mu.Lock()
	state := h.state
	h.mu.Unlock()

	switch state {
	case stateTerminated:
		return fmt.Errorf("%w: handler %q", ErrTerminated, h.name)
	case stateUnconfigured:
		if err := h.configure(p); err != nil {
			return err
		}
	}

	if err := h.fillOutput(p); err != nil {
		return err
	}

	// Deliver completions that arrived since the last call before
	// dispatching new work.
	h.reap(false)

	done, err := h.stage.StartWork(h, p)
	if err != nil || done == nil {
		// Synchronous completion, success or failure.
		h.executeStatusCheck(p, err)
		return err
	}

	if sync {
		status := <-done
		h.executeStatusCheck(p, status)
		return status
	}

	h.mu.Lock()
	h.inflight = append(h.inflight, &request{params: p, done: done})
	h.mu.Unlock()
	return nil
}

// configure runs the one-time Unconfigured -> Configured transition. On
// failure the handler stays Unconfigured so a later request can retry
// after the cause is fixed.
func (h *Handler) configure(p *Parameters) error {
	if err := h.stage.ConfigureResource(h, p); err != nil {
		return fmt.Errorf("%w: handler %q: %w", ErrConfigure, h.name, err)
	}

	h.mu.Lock()
	enable := h.enableAllocator
	info := h.outInfo
	count := h.bufCapacity
	h.mu.Unlock()

	if enable && h.Allocator() == nil {
		if !info.Valid() {
			return fmt.Errorf("%w: handler %q: allocator enabled without output video info", ErrConfigure, h.name)
		}
		if err := h.ReserveBuffers(info, count); err != nil {
			return err
		}
	}

	h.mu.Lock()
	h.state = stateConfigured
	h.mu.Unlock()
	Logger().Debug("handler configured", "handler", h.name, "allocator", enable)
	return nil
}

// fillOutput assigns a free pool buffer to p.Out when the handler owns an
// allocator and the caller supplied no output buffer.
func (h *Handler) fillOutput(p *Parameters) error {
	h.mu.Lock()
	alloc := h.allocator
	h.mu.Unlock()
	if alloc == nil || p.Out != nil {
		return nil
	}
	buf, err := alloc.GetFree()
	if err != nil {
		return fmt.Errorf("handler %q: %w", h.name, err)
	}
	p.Out = buf
	return nil
}

// reap delivers completions of in-flight requests in submission order.
// With block=false it stops at the first request still pending; with
// block=true it waits for every outstanding request.
func (h *Handler) reap(block bool) {
	for {
		h.mu.Lock()
		if len(h.inflight) == 0 {
			h.mu.Unlock()
			return
		}
		r := h.inflight[0]
		h.mu.Unlock()

		var status error
		if block {
			status = <-r.done
		} else {
			select {
			case status = <-r.done:
			default:
				return
			}
		}

		h.mu.Lock()
		h.inflight = h.inflight[1:]
		h.mu.Unlock()
		h.executeStatusCheck(r.params, status)
	}
}

// executeStatusCheck reports the final status of one request through the
// registered callback. Each request is reported at most once; a repeated
// report is dropped and logged so the exactly-once guarantee holds even
// against a misbehaving stage.
func (h *Handler) executeStatusCheck(p *Parameters, err error) {
	if p != nil && !p.markStatusDelivered() {
		Logger().Warn("duplicate status report dropped", "handler", h.name)
		return
	}
	h.mu.Lock()
	cb := h.callback
	h.mu.Unlock()
	if cb != nil {
		cb.ExecuteStatus(h, p, err)
	}
	if err != nil {
		Logger().Debug("request completed with error", "handler", h.name, "err", err)
	}
}

// Finish drains all in-flight asynchronous work, blocking until every
// outstanding callback has fired. Use it as a flush boundary before
// shutdown or between benchmark passes.
func (h *Handler) Finish() error {
	h.reap(true)
	return nil
}

// Terminate drains in-flight work, releases the stage's device resources
// and the owned allocator, and rejects all further execution with
// ErrTerminated. Terminate is idempotent; a handler is not restartable
// after it.
func (h *Handler) Terminate() error {
	h.mu.Lock()
	if h.state == stateTerminated {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	h.reap(true)

	h.mu.Lock()
	h.state = stateTerminated
	alloc := h.allocator
	h.allocator = nil
	h.mu.Unlock()

	var err error
	if st, ok := h.stage.(StageTerminator); ok {
		err = st.TerminateStage()
	}
	if alloc != nil {
		alloc.Close()
	}
	Logger().Debug("handler terminated", "handler", h.name)
	return err
}
