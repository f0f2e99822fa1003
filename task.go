package hashedwheel

// Task is the user-supplied callback invoked when a [Timeout] fires. It
// receives its own handle, so it can inspect or re-schedule itself without
// closing over an external reference.
type Task func(timeout *Timeout)

// ThreadFactory produces the dedicated goroutine (or, for callers that need
// OS-thread affinity, a locked OS thread via runtime.LockOSThread) that runs
// the worker loop. Go has no daemon/non-daemon thread distinction, so unlike
// the construction this type is modeled on, there is no status flag here -
// see SPEC_FULL.md's Open Question resolutions.
//
// The factory is responsible for invoking run; it must return promptly
// (run itself blocks for the lifetime of the timer).
type ThreadFactory func(run func())

// defaultThreadFactory starts run on a plain goroutine.
func defaultThreadFactory(run func()) {
	go run()
}
