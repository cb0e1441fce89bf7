package corevm

import "sync"

// CompileRequest is one entry in the JIT queue: the compiled code and
// receiver class a hot call site was observed with, plus the block
// environment/is_block flag and hit-count snapshot SPEC_FULL.md §3
// names for the data model, and an optional waiter a synchronous
// caller blocks on. Two requests naming the same (code, receiver
// class) pair coalesce into one under CompileSoon.
type CompileRequest struct {
	Code          *CompiledCode
	ReceiverClass *Class
	BlockEnv      Value
	IsBlock       bool
	HitCount      uint64
	Site          *CallSite

	// Waiter, if non-nil, is closed by Retire once this specific
	// request has been handled, the condition-variable-handle role
	// SPEC_FULL.md §3/§4.6 describes for a synchronous compile request.
	Waiter chan struct{}
}

func (r CompileRequest) key() compileKey {
	return compileKey{code: r.Code, class: r.ReceiverClass}
}

type compileKey struct {
	code  *CompiledCode
	class *Class
}

// Queue is the JIT compile request queue: a FIFO of pending compile
// requests, deduplicated by (code, receiver class), with an
// enable/disable switch and a sync/async toggle a caller can use to
// make compilation synchronous for testing. Grounded on the host
// JIT's own pending-channel plus registry design (vm/jit.go) and its
// counting-semaphore waiter idiom (vm/semaphore.go), adapted from a
// background worker pool to an explicit waiter a caller polls or
// blocks on.
type Queue struct {
	state *State

	mu      sync.Mutex
	pending []CompileRequest
	seen    map[compileKey]bool

	enabled   bool
	sync      bool
	threshold uint64

	methodUpdateDepth int

	// waiter is signaled, without blocking, on every enqueue; a
	// buffered channel of capacity 1 coalesces any number of signals
	// that arrive before Wait drains it,
	// mirroring the host's buffered-channel semaphore rather than a
	// sync.Cond.
	waiter chan struct{}
}

// NewQueue creates a Queue bound to state with the given hit
// threshold, enabled and asynchronous by default.
func NewQueue(state *State, threshold uint64) *Queue {
	return &Queue{
		state:     state,
		seen:      make(map[compileKey]bool),
		enabled:   true,
		threshold: threshold,
		waiter:    make(chan struct{}, 1),
	}
}

// Enable toggles the queue on or off. A disabled queue silently drops
// noteHit and CompileSoon calls.
func (q *Queue) Enable(on bool) {
	q.mu.Lock()
	q.enabled = on
	q.mu.Unlock()
	if q.state.Log != nil {
		q.state.Log.Infof("corevm: jit queue enable=%v", on)
	}
}

func (q *Queue) Enabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enabled
}

// SyncSet toggles synchronous mode: when true, Compile attaches a
// waiter and blocks until the request is retired instead of returning
// immediately. It has no effect on CompileSoon, which is always
// non-blocking per SPEC_FULL.md §4.6.
func (q *Queue) SyncSet(on bool) {
	q.mu.Lock()
	q.sync = on
	q.mu.Unlock()
	if q.state.Log != nil {
		q.state.Log.Infof("corevm: jit queue sync_set=%v", on)
	}
}

// SyncGet reports the current sync/async mode.
func (q *Queue) SyncGet() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sync
}

// CompileThreshold returns the hit count noteHit compares against.
func (q *Queue) CompileThreshold() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.threshold
}

// SetCompileThreshold updates the hit-count threshold.
func (q *Queue) SetCompileThreshold(n uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.threshold = n
}

// StartMethodUpdate marks the beginning of a method-body mutation
// (e.g. a redefinition). While any such span is open, CompileSoon and
// Compile enqueue nothing; requests already pending stay in the queue
// and are not invalidated. Nested calls are counted; EndMethodUpdate
// must be called once per StartMethodUpdate.
func (q *Queue) StartMethodUpdate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.methodUpdateDepth++
}

// EndMethodUpdate closes a StartMethodUpdate span. Once the depth
// returns to zero, CompileSoon and Compile enqueue requests again.
func (q *Queue) EndMethodUpdate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.methodUpdateDepth > 0 {
		q.methodUpdateDepth--
	}
}

func (q *Queue) duringMethodUpdate() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.methodUpdateDepth > 0
}

// noteHit is called by the monomorphic check path on every cache hit.
// Once a cache's hit count crosses the configured threshold, its site
// is scheduled for compilation. Cheap on the hot path: a single
// threshold comparison, with the heavier enqueue work gated behind it.
func (q *Queue) noteHit(cache *MonomorphicCache) {
	if !q.Enabled() {
		return
	}
	if cache.Hits() != q.CompileThreshold() {
		return
	}
	req := CompileRequest{
		Code:          cache.site.codeHint,
		ReceiverClass: cache.storedModule,
		Site:          cache.site,
		HitCount:      cache.Hits(),
	}
	q.CompileSoon(req)
}

// CompileSoon enqueues req, coalescing with any pending request for
// the same (code, receiver class) pair. Always non-blocking, per
// SPEC_FULL.md §4.6 — the sync/async toggle governs Compile, not this.
func (q *Queue) CompileSoon(req CompileRequest) {
	if !q.Enabled() || q.duringMethodUpdate() {
		return
	}

	site := ""
	if req.Site != nil {
		site = req.Site.Name()
	}

	q.mu.Lock()
	if q.seen[req.key()] {
		q.mu.Unlock()
		if q.state.Log != nil {
			q.state.Log.Debugf("corevm: jit compile_soon coalesced for %s", site)
		}
		return
	}
	q.seen[req.key()] = true
	q.pending = append(q.pending, req)
	q.mu.Unlock()

	if q.state.Log != nil {
		q.state.Log.Debugf("corevm: jit compile_soon enqueued for %s", site)
	}

	select {
	case q.waiter <- struct{}{}:
	default:
	}
}

// Compile is the primitive entry point SPEC_FULL.md §4.6 names
// compile(object, code, block_env): driven directly by a send that
// already knows it wants code compiled for object's class, rather than
// by a cache-hit threshold crossing. In synchronous mode (SyncGet()
// true) it attaches a fresh waiter to the request and blocks until
// Retire closes it — one of the three documented mutator suspension
// points (SPEC_FULL.md §5). In asynchronous mode it behaves exactly
// like CompileSoon and returns immediately.
func (q *Queue) Compile(object Value, code *CompiledCode, blockEnv Value) {
	req := CompileRequest{
		Code:          code,
		ReceiverClass: q.state.Classes.ClassOf(object),
		BlockEnv:      blockEnv,
		IsBlock:       blockEnv != Nil,
	}

	if !q.SyncGet() {
		q.CompileSoon(req)
		return
	}
	if q.duringMethodUpdate() {
		return
	}

	waiter := make(chan struct{})
	req.Waiter = waiter

	q.mu.Lock()
	q.pending = append(q.pending, req)
	q.mu.Unlock()

	select {
	case q.waiter <- struct{}{}:
	default:
	}

	<-waiter
}

// Wait blocks until at least one request is pending, or returns
// immediately if one already is. Callers drain with Dequeue in a
// loop; a background compile worker is exactly such a caller.
func (q *Queue) Wait() {
	for !q.hasPending() {
		<-q.waiter
	}
}

func (q *Queue) hasPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) > 0
}

// Dequeue pops the oldest pending request in FIFO order, or reports
// ok=false if the queue is empty. The caller is responsible for
// eventually calling Retire on what it dequeues.
func (q *Queue) Dequeue() (CompileRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return CompileRequest{}, false
	}
	req := q.pending[0]
	q.pending = q.pending[1:]
	return req, true
}

// Retire performs the (stubbed) compilation of req: producing machine
// code for a hot call site is the JIT code generator's job, out of
// scope here (SPEC_FULL.md §1). Retire's contract ends at
// recording that req was handled — freeing its (code, receiver class)
// key for a future CompileSoon — and, if req carries a waiter, closing
// it so a blocked Compile call resumes.
func (q *Queue) Retire(req CompileRequest) {
	if q.state.Log != nil {
		site := ""
		if req.Site != nil {
			site = req.Site.Name()
		}
		q.state.Log.Debugf("corevm: compile request retired for %s", site)
	}
	q.mu.Lock()
	delete(q.seen, req.key())
	q.mu.Unlock()
	if req.Waiter != nil {
		close(req.Waiter)
	}
}

// CompileCurrentFrame is the supplemented synchronous entry point a
// host embedding this core can call directly from a frame believed to
// be hot (e.g. a long-running loop body), bypassing the hit-threshold
// heuristic and the queue entirely by retiring a request immediately.
func (q *Queue) CompileCurrentFrame(frame *CallFrame, receiverClass *Class) {
	if frame == nil || frame.MachineCode == nil {
		return
	}
	q.Retire(CompileRequest{Code: frame.MachineCode.Source, ReceiverClass: receiverClass})
}
