package task

import (
	"container/heap"
	"time"
)

// queueState tracks where a machine sits in the engine.
type queueState int

const (
	stateIdle queueState = iota
	stateTimed
	stateReady
	stateRunning
	stateReleased
)

// timedHeap orders waiting machines by the time they become ready.
type timedHeap []*Machine

func (h timedHeap) Len() int { return len(h) }

func (h timedHeap) Less(i, j int) bool {
	if !h[i].readyAt.Equal(h[j].readyAt) {
		return h[i].readyAt.Before(h[j].readyAt)
	}
	return h[i].CreatedAt().Before(h[j].CreatedAt())
}

func (h timedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timedHeap) Push(x any) {
	m := x.(*Machine)
	m.index = len(*h)
	*h = append(*h, m)
}

func (h *timedHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	old[n-1] = nil
	m.index = -1
	*h = old[:n-1]
	return m
}

// readyHeap orders runnable machines by creation time, oldest first.
type readyHeap []*Machine

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	ci, cj := h[i].CreatedAt(), h[j].CreatedAt()
	if !ci.Equal(cj) {
		return ci.Before(cj)
	}
	return h[i].ID().String() < h[j].ID().String()
}

func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *readyHeap) Push(x any) {
	m := x.(*Machine)
	m.index = len(*h)
	*h = append(*h, m)
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	old[n-1] = nil
	m.index = -1
	*h = old[:n-1]
	return m
}

// readyQueue holds every machine waiting for a worker. It is not safe for
// concurrent use; the engine guards it with its own lock.
type readyQueue struct {
	timed timedHeap
	ready readyHeap
}

// push schedules m to run at, or immediately when at is not after now.
func (q *readyQueue) push(m *Machine, at, now time.Time) {
	if at.After(now) {
		m.readyAt = at
		m.state = stateTimed
		heap.Push(&q.timed, m)
		return
	}
	m.readyAt = now
	m.state = stateReady
	heap.Push(&q.ready, m)
}

// promote moves every timed machine whose time has come to the ready heap.
func (q *readyQueue) promote(now time.Time) {
	for len(q.timed) > 0 && !q.timed[0].readyAt.After(now) {
		m := heap.Pop(&q.timed).(*Machine)
		m.state = stateReady
		heap.Push(&q.ready, m)
	}
}

// pop returns the oldest ready machine or nil.
func (q *readyQueue) pop() *Machine {
	if len(q.ready) == 0 {
		return nil
	}
	return heap.Pop(&q.ready).(*Machine)
}

// peek returns the oldest ready machine without removing it.
func (q *readyQueue) peek() *Machine {
	if len(q.ready) == 0 {
		return nil
	}
	return q.ready[0]
}

// expedite makes a timed machine ready now.
func (q *readyQueue) expedite(m *Machine, now time.Time) {
	if m.state != stateTimed || m.index < 0 {
		return
	}
	heap.Remove(&q.timed, m.index)
	m.readyAt = now
	m.state = stateReady
	heap.Push(&q.ready, m)
}

// nextWake reports when the earliest timed machine becomes ready.
func (q *readyQueue) nextWake() (time.Time, bool) {
	if len(q.timed) == 0 {
		return time.Time{}, false
	}
	return q.timed[0].readyAt, true
}

func (q *readyQueue) len() (timed, ready int) {
	return len(q.timed), len(q.ready)
}
