// Copyright © 2018 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package pangc

import (
	"container/heap"
	"sync"
)

// taskKind distinguishes ordinary contig work from the tagged barrier
// tokens the reproducibility pipeline drives its stage machine with.
type taskKind int

const (
	taskContig taskKind = iota
	taskNewSplitters
	taskRegistration
)

// Task is one unit of work routed through a TaskQueue: either a contig to
// segment, or a stage token with no payload.
type Task struct {
	Kind    taskKind
	Contig  NamedContig
	sample  int // decreasing per input sample, highest priority first
	seq     int // FIFO tiebreak among equal-priority tasks
}

// taskLess orders tasks for the priority queue: higher sample priority
// first; within a sample, the longest contig first (so long contigs don't
// starve behind a flood of short ones); stage tokens for a sample always
// sort after every contig task of that same sample, and ties fall back to
// arrival order.
func taskLess(a, b Task) bool {
	if a.sample != b.sample {
		return a.sample > b.sample
	}
	aTok, bTok := a.Kind != taskContig, b.Kind != taskContig
	if aTok != bTok {
		return !aTok // non-token before token
	}
	if !aTok {
		if la, lb := len(a.Contig.Seq), len(b.Contig.Seq); la != lb {
			return la > lb
		}
	}
	return a.seq < b.seq
}

type taskHeap []Task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return taskLess(h[i], h[j]) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(Task)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TaskQueue is a bounded, priority-ordered work queue. Producers block in
// Push when the queue is at capacity; consumers block in Pop when it is
// empty, until Close unblocks every waiter.
type TaskQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	h        taskHeap
	capacity int
	closed   bool
	nextSeq  int
}

// NewTaskQueue returns an empty queue bounded at capacity items.
func NewTaskQueue(capacity int) *TaskQueue {
	if capacity < 1 {
		capacity = 1
	}
	q := &TaskQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push enqueues t, blocking while the queue is full. It is a no-op once
// the queue has been closed.
func (q *TaskQueue) Push(t Task, sample int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.h) >= q.capacity && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return
	}
	t.sample = sample
	t.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.h, t)
	q.notEmpty.Signal()
}

// Pop removes and returns the highest-priority task, blocking while the
// queue is empty. ok is false once the queue is closed and drained.
func (q *TaskQueue) Pop() (t Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.h) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.h) == 0 {
		return Task{}, false
	}
	item := heap.Pop(&q.h).(Task)
	q.notFull.Signal()
	return item, true
}

// Close marks the queue closed and wakes every blocked Push/Pop. Already
// queued items remain poppable until drained.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Barrier is a reusable cyclic rendezvous point for n goroutines, the
// primitive the reproducibility pipeline's "all_contigs" / "new_splitters"
// / "registration" stage transitions are built from.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	arrived int
	gen     int
}

// NewBarrier returns a barrier that releases once n goroutines call Wait.
func NewBarrier(n int) *Barrier {
	b := &Barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until all n parties have called Wait, then returns true to
// exactly one caller (the one responsible for doing the barrier's
// serial work, e.g. worker 0's registration bookkeeping) and false to the
// rest.
func (b *Barrier) Wait() (isLeader bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.gen
	b.arrived++
	if b.arrived == b.n {
		b.arrived = 0
		b.gen++
		b.cond.Broadcast()
		return true
	}
	for gen == b.gen {
		b.cond.Wait()
	}
	return false
}
