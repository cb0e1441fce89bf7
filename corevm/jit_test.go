package corevm

import (
	"runtime"
	"testing"
)

func TestQueueCoalescesSameCodeAndClass(t *testing.T) {
	state := newTestState(t)
	q := state.JIT
	q.SyncSet(false)

	site := NewEmptyCallSite("compute", 1, 0)
	code := &CompiledCode{Name: "compute"}
	site.codeHint = code

	req := CompileRequest{Code: code, ReceiverClass: state.Classes.Integer, Site: site}
	q.CompileSoon(req)
	q.CompileSoon(req)

	q.mu.Lock()
	pending := len(q.pending)
	q.mu.Unlock()

	if pending != 1 {
		t.Errorf("pending = %d, want 1 (second CompileSoon should coalesce)", pending)
	}
}

func TestQueueDequeueFIFO(t *testing.T) {
	state := newTestState(t)
	q := state.JIT

	first := CompileRequest{Code: &CompiledCode{Name: "a"}, ReceiverClass: state.Classes.Integer, Site: NewEmptyCallSite("a", 1, 0)}
	second := CompileRequest{Code: &CompiledCode{Name: "b"}, ReceiverClass: state.Classes.Integer, Site: NewEmptyCallSite("b", 1, 0)}

	q.CompileSoon(first)
	q.CompileSoon(second)

	got1, ok := q.Dequeue()
	if !ok || got1.Site.Name() != "a" {
		t.Fatalf("first dequeue = %+v, ok=%v, want site a", got1, ok)
	}
	got2, ok := q.Dequeue()
	if !ok || got2.Site.Name() != "b" {
		t.Fatalf("second dequeue = %+v, ok=%v, want site b", got2, ok)
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("third dequeue should report empty queue")
	}
}

func TestQueueDisabledDropsHits(t *testing.T) {
	state := newTestState(t)
	q := state.JIT
	q.Enable(false)

	site := NewEmptyCallSite("x", 1, 0)
	cache := &MonomorphicCache{site: site}
	cache.hits.Store(q.CompileThreshold())

	q.noteHit(cache)

	if q.hasPending() {
		t.Error("a disabled queue should not enqueue on noteHit")
	}
}

func TestQueueCompileSoonIgnoresSyncMode(t *testing.T) {
	state := newTestState(t)
	q := state.JIT
	q.SyncSet(true)

	req := CompileRequest{Code: &CompiledCode{Name: "sync"}, ReceiverClass: state.Classes.Integer, Site: NewEmptyCallSite("sync", 1, 0)}
	q.CompileSoon(req)

	if !q.hasPending() {
		t.Error("CompileSoon should always enqueue, regardless of sync mode")
	}
}

func TestQueueCompileBlocksUntilRetiredInSyncMode(t *testing.T) {
	state := newTestState(t)
	q := state.JIT
	q.SyncSet(true)

	code := &CompiledCode{Name: "hot"}
	done := make(chan struct{})
	go func() {
		q.Compile(FromSmallInt(1), code, Nil)
		close(done)
	}()

	var req CompileRequest
	for {
		if r, ok := q.Dequeue(); ok {
			req = r
			break
		}
		runtime.Gosched()
	}
	if req.Code != code {
		t.Fatalf("dequeued request code = %v, want %v", req.Code, code)
	}
	if req.ReceiverClass != state.Classes.Integer {
		t.Errorf("dequeued request receiver class = %v, want Integer", req.ReceiverClass)
	}
	if req.Waiter == nil {
		t.Fatal("a synchronous Compile request should carry a waiter")
	}

	select {
	case <-done:
		t.Fatal("Compile returned before Retire closed its waiter")
	default:
	}

	q.Retire(req)
	<-done
}

func TestQueueCompileAsyncModeDoesNotBlock(t *testing.T) {
	state := newTestState(t)
	q := state.JIT
	q.SyncSet(false)

	code := &CompiledCode{Name: "cold"}
	q.Compile(FromSmallInt(1), code, Nil)

	req, ok := q.Dequeue()
	if !ok {
		t.Fatal("async Compile should have enqueued a request")
	}
	if req.Waiter != nil {
		t.Error("an asynchronous Compile request should not carry a waiter")
	}
}

func TestQueueMethodUpdateSuppressesCompile(t *testing.T) {
	state := newTestState(t)
	q := state.JIT
	q.StartMethodUpdate()
	defer q.EndMethodUpdate()

	req := CompileRequest{Code: &CompiledCode{Name: "held"}, ReceiverClass: state.Classes.Integer, Site: NewEmptyCallSite("held", 1, 0)}
	q.CompileSoon(req)

	if q.hasPending() {
		t.Error("CompileSoon during a method update span should not enqueue")
	}
}
