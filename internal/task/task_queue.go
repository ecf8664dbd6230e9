package task

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"
)

// laneHeap is a min-heap of tasks ordered by Task.less.
type laneHeap []*Task

func (h laneHeap) Len() int           { return len(h) }
func (h laneHeap) Less(i, j int) bool { return h[i].less(h[j]) }
func (h laneHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *laneHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *laneHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// TaskQueue is a bounded priority queue for one task class. It is split
// into a short and a long lane; capacity is shared by both lanes.
type TaskQueue struct {
	class    Class
	capacity int

	mu     sync.Mutex
	lanes  [2]laneHeap
	wake   [2]chan struct{}
	closed bool
}

// NewTaskQueue creates a queue holding at most capacity tasks.
func NewTaskQueue(class Class, capacity int) *TaskQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &TaskQueue{
		class:    class,
		capacity: capacity,
		wake:     [2]chan struct{}{make(chan struct{}), make(chan struct{})},
	}
}

// Enqueue adds t to its lane.
// Returns an error if the queue is full or closed.
func (q *TaskQueue) Enqueue(t *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.lenLocked() >= q.capacity {
		return fmt.Errorf("%w: %s queue capacity %d reached", ErrQueueFull, q.class, q.capacity)
	}

	t.enqueued = time.Now()
	heap.Push(&q.lanes[t.lane], t)
	close(q.wake[t.lane])
	q.wake[t.lane] = make(chan struct{})
	return nil
}

// Dequeue pops the most urgent task of lane, waiting at most wait for one
// to arrive. It returns (nil, nil) when the wait elapsed.
func (q *TaskQueue) Dequeue(ctx context.Context, lane Lane, wait time.Duration) (*Task, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		if q.lanes[lane].Len() > 0 {
			t := heap.Pop(&q.lanes[lane]).(*Task)
			q.mu.Unlock()
			return t, nil
		}
		wake := q.wake[lane]
		q.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Remove takes t out of the queue. It reports whether t was queued.
func (q *TaskQueue) Remove(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	h := &q.lanes[t.lane]
	if t.index < 0 || t.index >= h.Len() || (*h)[t.index] != t {
		return false
	}
	heap.Remove(h, t.index)
	return true
}

// OldestWait returns how long the longest-waiting task of lane has been
// queued at now. It is zero for an empty lane.
func (q *TaskQueue) OldestWait(lane Lane, now time.Time) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	var oldest time.Duration
	for _, t := range q.lanes[lane] {
		oldest = max(oldest, now.Sub(t.enqueued))
	}
	return oldest
}

// Full reports whether the queue is at capacity.
func (q *TaskQueue) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked() >= q.capacity
}

// Len returns the number of queued tasks across both lanes.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// LaneLen returns the number of queued tasks in lane.
func (q *TaskQueue) LaneLen(lane Lane) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lanes[lane].Len()
}

func (q *TaskQueue) lenLocked() int {
	return q.lanes[ShortLane].Len() + q.lanes[LongLane].Len()
}

// Close rejects further tasks, wakes blocked consumers and returns the
// tasks that were still queued, in no particular order.
func (q *TaskQueue) Close() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	for i := range q.wake {
		close(q.wake[i])
	}

	var drained []*Task
	for i := range q.lanes {
		for _, t := range q.lanes[i] {
			t.index = -1
			drained = append(drained, t)
		}
		q.lanes[i] = nil
	}
	return drained
}
