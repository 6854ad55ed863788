package proc

import (
	"sync/atomic"

	"github.com/northernlights/weenix-go/internal/sched"
)

// DefaultStackSize is the simulated kernel stack size, kept only so
// Thread.Stack has a realistic, non-zero allocation to free at destroy
// time — real register/IP/SP state lives in the Go goroutine the source
// can't express, not in this slice.
const DefaultStackSize = 8192

// Context stands in for the saved machine context (instruction pointer,
// stack pointer, page-table handle) spec.md §3 lists as a Thread attribute.
// Only the page-table handle is kept as a field; there is no instruction
// or stack pointer field. None of it is consulted by this package: a
// goroutine is its own context.
type Context struct {
	PageTable uintptr
}

// EntryFunc is the function a thread begins executing the first time it is
// scheduled in, per thread_create's contract.
type EntryFunc func(arg1, arg2 any) int

// Thread is a kernel thread: an owning Process, a goroutine standing in for
// its kernel stack, and the scheduling state sched.Scheduler operates on
// through the Runnable interface.
type Thread struct {
	id uint64

	// Owning process. Non-owning back-reference: Thread never frees Proc.
	Proc *Process

	node   sched.Node
	procLN *listNode[*Thread] // this thread's node in Proc.threads

	state     atomicState
	cancelled atomic.Bool
	retval    atomic.Int32
	Stack     []byte
	Ctx       Context

	entry      EntryFunc
	arg1, arg2 any
	resume     chan struct{}
}

type atomicState struct{ v atomic.Int32 }

func (s *atomicState) load() sched.State     { return sched.State(s.v.Load()) }
func (s *atomicState) store(v sched.State)   { s.v.Store(int32(v)) }

var nextThreadID atomic.Uint64

// NewThread allocates a thread in state Run (not yet on the run queue —
// the caller decides when to call sched.MakeRunnable, per spec.md §4.3),
// attaches it to p's thread list, and starts the backing goroutine parked
// waiting for its first Resume.
func NewThread(p *Process, entry EntryFunc, arg1, arg2 any) *Thread {
	t := &Thread{
		id:     nextThreadID.Add(1),
		Proc:   p,
		Stack:  make([]byte, DefaultStackSize),
		entry:  entry,
		arg1:   arg1,
		arg2:   arg2,
		resume: make(chan struct{}),
	}
	t.state.store(sched.Run)
	t.procLN = p.threads.PushBack(t)

	go t.run()
	return t
}

func (t *Thread) ID() uint64 { return t.id }

func (t *Thread) run() {
	t.Park() // wait to be scheduled in for the first time

	if t.Cancelled() {
		doExit(t, int(t.retval.Load()))
		return
	}

	rv := t.entry(t.arg1, t.arg2)
	doExit(t, rv)
}

// --- sched.Runnable ---

func (t *Thread) State() sched.State       { return t.state.load() }
func (t *Thread) SetState(s sched.State)   { t.state.store(s) }
func (t *Thread) Cancelled() bool          { return t.cancelled.Load() }
func (t *Thread) SetCancelled(v bool)      { t.cancelled.Store(v) }
func (t *Thread) SetRetval(v int)          { t.retval.Store(int32(v)) }
func (t *Thread) Retval() int              { return int(t.retval.Load()) }
func (t *Thread) QueueNode() *sched.Node   { return &t.node }

func (t *Thread) Resume() {
	t.resume <- struct{}{}
}

func (t *Thread) Park() {
	<-t.resume
}
