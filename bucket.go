package hashedwheel

// bucket is a wheel slot: an intrusive doubly-linked list of [Timeout]
// handles. It is touched only by the worker goroutine, so it needs no
// internal locking - see spec.md §3 "Bucket".
type bucket struct {
	head, tail *Timeout
}

// addTimeout appends h to the tail of the list. h must not already belong
// to a bucket.
func (b *bucket) addTimeout(h *Timeout) {
	h.bucket = b
	if b.tail == nil {
		b.head = h
		b.tail = h
		return
	}
	h.prev = b.tail
	b.tail.next = h
	b.tail = h
}

// remove unlinks h from the list it belongs to, decrements pending_timeouts
// via releasePending, clears h's links to aid reclamation, and returns h's
// successor so callers iterating the list are not invalidated.
func (b *bucket) remove(h *Timeout) *Timeout {
	next := h.next

	if h.prev != nil {
		h.prev.next = h.next
	} else {
		b.head = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	} else {
		b.tail = h.prev
	}

	h.prev = nil
	h.next = nil
	h.bucket = nil

	h.timer.releasePending()

	return next
}

// expireTimeouts walks the list, firing or dropping each handle per
// spec.md §4.4's expire-bucket algorithm. deadline is the worker's current
// elapsed time (now - start_time), used to validate that a
// remainingRounds==0 handle's own deadline has actually been reached.
func (b *bucket) expireTimeouts(w *worker, deadline int64) {
	h := b.head
	for h != nil {
		if h.remainingRounds <= 0 {
			next := b.remove(h)

			if h.deadline > deadline {
				// The wheel was misprogrammed: a handle that has used up
				// its rounds but whose deadline is still in the future.
				// This is an internal assertion failure, not a runtime
				// condition callers can trigger.
				panic("hashedwheel: bucket slot holds a handle with an unreached deadline")
			}

			if h.state.tryTransition(uint64(handleInit), uint64(handleExpired)) {
				w.runTask(h)
			}
			// CAS failure means the handle was concurrently cancelled;
			// drop it silently, matching spec.md §4.4.

			h = next
			continue
		}

		if handleState(h.state.load()) == handleCancelled {
			h = b.remove(h)
			continue
		}

		h.remainingRounds--
		h = h.next
	}
}

// clearTimeouts drains every handle in the bucket into sink, skipping
// terminal (already cancelled or expired) handles. Used during shutdown
// draining (spec.md §4.4 step 3) to build the "unprocessed" set.
func (b *bucket) clearTimeouts(sink *[]*Timeout) {
	h := b.head
	for h != nil {
		next := h.next
		h.prev = nil
		h.next = nil
		h.bucket = nil

		if handleState(h.state.load()) == handleInit {
			*sink = append(*sink, h)
		}

		h = next
	}
	b.head = nil
	b.tail = nil
}
