// Package sched implements the kernel's single global run queue, its FIFO
// wait queues, sleep/wake/cancel semantics, and a sleep-based mutex — the
// cooperative, single-CPU scheduler described in spec.md §4.1 and §4.2.
//
// There is no real machine context to save and restore: each Runnable owns
// a goroutine that plays the part of a kernel thread running on its own
// kernel stack, and a "context switch" is a handshake on that goroutine's
// Park/Resume channel. Exactly one goroutine is ever unblocked past its own
// Park call at a time — the one recorded as Current — which is what gives
// this package the same one-thread-at-a-time semantics as the source's
// single-CPU scheduler (spec.md §1 Non-goals: no multi-CPU, no preemption).
//
// kernelLock stands in for IPL (interrupt priority level) masking: raising
// IPL to HIGH in the source corresponds to holding kernelLock here, and the
// run queue is deliberately the one piece of state reachable from both
// thread context and simulated interrupt context (spec.md §5), so it is
// protected by a real mutex (kernelLock) rather than by the cooperative
// single-runner discipline alone.
package sched

import "sync"

var (
	kernelLock sync.Mutex
	kernelCond = sync.NewCond(&kernelLock)
	runQueue   WaitQueue
	current    Runnable

	// cancelExitHook is invoked (with kernelLock not held) whenever a
	// Runnable resumes from a suspension point with its cancelled flag
	// set. internal/proc registers this once, at init, to route the
	// resumption into thread_exit — spec.md §4.1: "After the switch
	// returns in the newly selected thread, if its cancelled flag is set
	// the thread performs do_exit(0) before returning to its caller."
	cancelExitHook func(Runnable)

	// onSwitch, when set, is called on every completed context switch
	// with the Runnable that just became current. Used by internal/metrics
	// to count switches without this package importing metrics.
	onSwitch func(Runnable)
)

// SetCancelExitHook installs the callback used to unwind a cancelled
// thread after it resumes. It is expected to never return: internal/proc's
// hook runs the thread's exit path, which ends in Exit, and then ends the
// goroutine with runtime.Goexit.
func SetCancelExitHook(f func(Runnable)) { cancelExitHook = f }

// SetSwitchHook installs an observer called after every context switch.
func SetSwitchHook(f func(Runnable)) { onSwitch = f }

// Current returns the Runnable presently holding the CPU. It is valid only
// from within thread context (i.e. called by code running as the result of
// being switched in).
func Current() Runnable {
	kernelLock.Lock()
	defer kernelLock.Unlock()
	return current
}

// MakeRunnable transitions r to Run and places it at the tail of the run
// queue. The caller must have already set up r (e.g. via thread_create);
// MakeRunnable is the point at which r first becomes eligible to execute.
func MakeRunnable(r Runnable) {
	kernelLock.Lock()
	r.SetState(Run)
	runQueue.enqueue(r)
	kernelCond.Broadcast()
	kernelLock.Unlock()
}

// pickNext dequeues the next eligible (non-Exited) thread from the run
// queue, blocking (simulating intr_wait) while the queue holds nothing but
// Exited stragglers or is empty. Callers must hold kernelLock and get it
// back held on return.
func pickNext() Runnable {
	for {
		for {
			n := runQueue.dequeue()
			if n == nil {
				break
			}
			if n.State() == Exited {
				continue
			}
			return n
		}
		kernelCond.Wait()
	}
}

// Switch hands the CPU to the next eligible thread on the run queue and
// blocks the caller until it is itself switched back in. Exited threads
// encountered on the run queue are skipped and dropped. If the run queue is
// empty, Switch waits (simulating intr_wait) until some interrupt-context
// or thread-context call enqueues something.
func Switch() {
	kernelLock.Lock()
	next := pickNext()
	prev := current
	current = next
	kernelLock.Unlock()

	if onSwitch != nil {
		onSwitch(next)
	}

	next.Resume()
	if prev != nil {
		prev.Park()
		checkCancelledCheckpoint(prev)
	}
}

// Exit hands the CPU to the next eligible thread and does not park the
// caller: it is meant to be called as the very last thing a thread does
// before its backing goroutine returns, since an Exited Runnable is never
// resumed again. Unlike Switch, there is no "prev" to park and no
// cancellation checkpoint to run — a thread cannot observe its own exit.
func Exit() {
	kernelLock.Lock()
	next := pickNext()
	current = next
	kernelLock.Unlock()

	if onSwitch != nil {
		onSwitch(next)
	}

	next.Resume()
}

// checkCancelledCheckpoint implements the "observe cancellation at the next
// voluntary checkpoint" half of spec.md §4.1/§5: any thread resuming from a
// Park (i.e. from having been switched out) self-unwinds via the registered
// exit hook if it was cancelled while off-CPU.
func checkCancelledCheckpoint(r Runnable) {
	if r.Cancelled() && r.State() != Exited && cancelExitHook != nil {
		cancelExitHook(r)
	}
}

// SleepOn parks the current thread on q until some other thread calls
// WakeupOn or BroadcastOn on q.
func SleepOn(q *WaitQueue) {
	kernelLock.Lock()
	current.SetState(Sleep)
	r := current
	q.enqueue(r)
	kernelLock.Unlock()

	Switch()
}

// ErrInterrupted is returned by CancellableSleepOn when the sleeper was
// cancelled instead of woken normally.
var ErrInterrupted = interruptedError{}

type interruptedError struct{}

func (interruptedError) Error() string { return "sched: sleep interrupted by cancellation" }

// CancellableSleepOn behaves like SleepOn, but the sleep can be unblocked
// early by Cancel. It returns ErrInterrupted if the thread was already
// cancelled (in which case it never blocks) or was cancelled while asleep;
// it returns nil if woken normally.
func CancellableSleepOn(q *WaitQueue) error {
	kernelLock.Lock()
	r := current
	if r.Cancelled() {
		kernelLock.Unlock()
		return ErrInterrupted
	}
	r.SetState(SleepCancellable)
	q.enqueue(r)
	kernelLock.Unlock()

	Switch()

	if r.Cancelled() {
		return ErrInterrupted
	}
	return nil
}

// WakeupOn dequeues and reschedules at most one sleeper from q, returning
// it (or nil if q was empty).
func WakeupOn(q *WaitQueue) Runnable {
	kernelLock.Lock()
	r := q.dequeue()
	if r == nil {
		kernelLock.Unlock()
		return nil
	}
	if s := r.State(); s != Sleep && s != SleepCancellable {
		kernelLock.Unlock()
		panic("sched: wakeup of a thread that was not sleeping")
	}
	r.SetState(Run)
	runQueue.enqueue(r)
	kernelCond.Broadcast()
	kernelLock.Unlock()
	return r
}

// BroadcastOn wakes every sleeper on q, oldest first.
func BroadcastOn(q *WaitQueue) {
	for WakeupOn(q) != nil {
	}
}

// Cancel sets r's cancelled flag. If r is presently in a cancellable sleep,
// it is additionally pulled off its wait queue and moved to the run queue
// so that it will promptly observe the flag, per spec.md §4.1.
func Cancel(r Runnable) {
	kernelLock.Lock()
	r.SetCancelled(true)
	if r.State() == SleepCancellable {
		n := r.QueueNode()
		if q := n.Queue(); q != nil {
			q.unlink(n)
		}
		r.SetState(Run)
		runQueue.enqueue(r)
		kernelCond.Broadcast()
	}
	kernelLock.Unlock()
}

// Remove unconditionally takes r off whatever queue it is on, without
// touching its state.
func Remove(r Runnable) {
	kernelLock.Lock()
	n := r.QueueNode()
	if q := n.Queue(); q != nil {
		q.unlink(n)
	}
	kernelLock.Unlock()
}

// RunQueueLen reports the number of threads presently on the run queue.
// Exposed for metrics and tests only.
func RunQueueLen() int {
	kernelLock.Lock()
	defer kernelLock.Unlock()
	return runQueue.Len()
}
