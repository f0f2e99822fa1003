// Package hashedwheel implements an approximate, high-throughput scheduler
// for large numbers of short-to-medium duration deferred tasks, based on the
// Varghese-Lauck hashed timing wheel construction. Schedule and cancel are
// O(1) regardless of the number of pending timeouts, at the cost of bounded
// tick-granularity skew.
//
// # Architecture
//
// A [Timer] owns a fixed-size [wheel] of buckets, each an intrusive
// doubly-linked list of [Timeout] handles. A single dedicated worker
// goroutine advances the wheel one tick at a time: it drains newly
// submitted timeouts from a lock-free ingress queue into their target
// bucket, drains cancellations from a second lock-free queue, then expires
// every handle in the bucket under the current hand position. Task
// callbacks run serially on the worker goroutine - a slow callback delays
// every other timeout on the wheel, by design (see [Timer.NewTimeout]).
//
// # Thread Safety
//
//   - [Timer.NewTimeout] is safe to call from any goroutine.
//   - [Timeout.Cancel] is safe to call from any goroutine, including the
//     worker goroutine itself.
//   - [Timer.Stop] must not be called from within a task callback; doing so
//     returns [ErrIllegalState].
//   - Bucket contents, intrusive links, and the tick counter are touched
//     only by the worker goroutine and require no synchronization.
//
// # Execution Model
//
// The worker is started lazily, on the first call to [Timer.NewTimeout].
// It sleeps until the next tick boundary, drains ingress and cancellation
// queues, expires the bucket at the current hand position, then repeats
// until [Timer.Stop] transitions it to shutdown. On shutdown it returns the
// set of timeouts that had neither fired nor been cancelled.
//
// # Usage
//
//	timer, err := hashedwheel.New(
//		hashedwheel.WithTickDuration(100*time.Millisecond),
//		hashedwheel.WithTicksPerWheel(512),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	handle, err := timer.NewTimeout(func(h *hashedwheel.Timeout) {
//		fmt.Println("idle connection timed out")
//	}, 30*time.Second)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer handle.Cancel()
//
//	unprocessed, err := timer.Stop()
//	_ = unprocessed
//	_ = err
//
// # Error Types
//
//   - [ErrInvalidArgument]: constructor-time validation failures.
//   - [ErrIllegalState]: starting after shutdown, or calling Stop from the
//     worker goroutine.
//   - [ErrRejected]: submission exceeds WithMaxPendingTimeouts.
//   - [TaskFaultError]: a recovered panic from a task callback (logged, not
//     propagated - the worker keeps running).
package hashedwheel
