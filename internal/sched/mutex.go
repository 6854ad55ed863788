package sched

// Mutex is sleep-based mutual exclusion built on a WaitQueue, per spec.md
// §4.2. Ownership transfers directly from the unlocking thread to the next
// sleeper woken — there is no re-acquire race, because only one thread ever
// runs at a time in this cooperative scheduler.
//
// The debug-mode invariant hook mirrors gcsfuse's
// syncutil.InvariantMutex (fs/fs.go: "fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)"):
// a caller may register a function to run on every lock/unlock boundary to
// catch invariant violations while they're cheap to attribute.
type Mutex struct {
	wait      WaitQueue
	holder    Runnable
	checkFunc func()
}

// SetInvariantCheck installs f to run after every successful Lock and
// before every Unlock, the way gcsfuse's fileSystem.checkInvariants runs
// under its InvariantMutex. Intended for debug builds/tests; nil disables
// it (the zero value).
func (m *Mutex) SetInvariantCheck(f func()) { m.checkFunc = f }

// Lock blocks until the calling thread (sched.Current()) holds m.
func (m *Mutex) Lock() {
	kernelLock.Lock()
	self := current
	if m.holder == nil {
		m.holder = self
		kernelLock.Unlock()
		m.check()
		return
	}
	if m.holder == self {
		kernelLock.Unlock()
		panic("sched: Mutex.Lock called by the thread that already holds it")
	}
	kernelLock.Unlock()

	SleepOn(&m.wait)
	m.check()
}

// LockCancellable behaves like Lock but can be interrupted by Cancel,
// returning ErrInterrupted without acquiring the mutex.
func (m *Mutex) LockCancellable() error {
	kernelLock.Lock()
	self := current
	if m.holder == nil {
		m.holder = self
		kernelLock.Unlock()
		m.check()
		return nil
	}
	if m.holder == self {
		kernelLock.Unlock()
		panic("sched: Mutex.LockCancellable called by the thread that already holds it")
	}
	kernelLock.Unlock()

	if err := CancellableSleepOn(&m.wait); err != nil {
		return err
	}
	m.check()
	return nil
}

// Unlock releases m, transferring ownership to the next sleeper (if any).
// The calling thread must be the current holder.
func (m *Mutex) Unlock() {
	m.check()

	kernelLock.Lock()
	self := current
	if m.holder != self {
		kernelLock.Unlock()
		panic("sched: Mutex.Unlock called by a thread that is not the holder")
	}
	m.holder = nil
	kernelLock.Unlock()

	next := WakeupOn(&m.wait)
	if next != nil {
		kernelLock.Lock()
		m.holder = next
		kernelLock.Unlock()
	}
}

// Holder reports the current holder, or nil. Exposed for tests and debug
// dumps only.
func (m *Mutex) Holder() Runnable {
	kernelLock.Lock()
	defer kernelLock.Unlock()
	return m.holder
}

func (m *Mutex) check() {
	if m.checkFunc != nil {
		m.checkFunc()
	}
}
