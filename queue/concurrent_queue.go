// Package queue provides an unbounded, dynamically growing FIFO queue
// expressed as a pair of channels, so that a single producer and a single
// consumer can run on independent goroutines without either one blocking
// the other on a fixed-size buffer.
package queue

import "sync"

// ConcurrentQueue is a concurrent-safe FIFO queue with unbounded capacity.
// Writers send on ChanIn, readers receive on ChanOut; internally, anything
// that can't be hand off immediately is held on a growable slice.
type ConcurrentQueue struct {
	chanIn  chan interface{}
	chanOut chan interface{}

	mtx sync.Mutex
	len int

	wg   sync.WaitGroup
	quit chan struct{}

	started bool
}

// NewConcurrentQueue creates a new ConcurrentQueue. bufferGuaranteeSize is
// the capacity of the inbound channel, which lets that many sends complete
// without the queue manager goroutine being scheduled. ChanOut is
// deliberately unbuffered: Len/Empty only account for what's in the
// internal pending slice, so a buffered chanOut would let items sit
// uncounted between the manager handing them off and the consumer
// receiving them — invisible to anything (like an up-to-date oracle)
// that relies on Empty() meaning "nothing left to drain".
func NewConcurrentQueue(bufferGuaranteeSize int) *ConcurrentQueue {
	return &ConcurrentQueue{
		chanIn:  make(chan interface{}, bufferGuaranteeSize),
		chanOut: make(chan interface{}),
		quit:    make(chan struct{}),
	}
}

// ChanIn returns a channel that can be used to send new items into the
// queue.
func (cq *ConcurrentQueue) ChanIn() chan<- interface{} {
	return cq.chanIn
}

// ChanOut returns a channel that can be used to receive items out of the
// queue, in FIFO order.
func (cq *ConcurrentQueue) ChanOut() <-chan interface{} {
	return cq.chanOut
}

// Len returns the number of items held in the queue manager's internal
// pending slice. Items still sitting in ChanIn's buffer, not yet taken in by
// the manager goroutine, are not counted. The count is updated by the
// manager just after each hand-off to ChanOut, so an item a consumer has
// already received can still be counted for that short interval.
func (cq *ConcurrentQueue) Len() int {
	cq.mtx.Lock()
	defer cq.mtx.Unlock()
	return cq.len
}

// Empty reports whether Len is zero.
func (cq *ConcurrentQueue) Empty() bool {
	return cq.Len() == 0
}

// Start begins the goroutine that moves items from ChanIn to ChanOut.
func (cq *ConcurrentQueue) Start() {
	if cq.started {
		return
	}
	cq.started = true
	cq.wg.Add(1)
	go cq.queueManager()
}

// Stop signals the queue manager goroutine to exit and waits for it to do
// so. It is not safe to send on ChanIn after Stop returns.
func (cq *ConcurrentQueue) Stop() {
	if !cq.started {
		return
	}
	close(cq.quit)
	cq.wg.Wait()
}

// queueManager moves items between the two channels, buffering in a slice
// whenever the consumer isn't ready to receive immediately. This keeps
// producers from ever blocking on a full buffer.
func (cq *ConcurrentQueue) queueManager() {
	defer cq.wg.Done()

	var pending []interface{}

	for {
		if len(pending) == 0 {
			select {
			case n := <-cq.chanIn:
				pending = append(pending, n)
				cq.setLen(len(pending))
			case <-cq.quit:
				return
			}
			continue
		}

		select {
		case n := <-cq.chanIn:
			pending = append(pending, n)
			cq.setLen(len(pending))
		case cq.chanOut <- pending[0]:
			pending[0] = nil
			pending = pending[1:]
			cq.setLen(len(pending))
		case <-cq.quit:
			return
		}
	}
}

func (cq *ConcurrentQueue) setLen(n int) {
	cq.mtx.Lock()
	cq.len = n
	cq.mtx.Unlock()
}
