package loader

import "container/heap"

// taskHeap is a deadline-ordered min-heap: the task with the soonest
// DeadlineFrame pops first, ties broken by submission order. Grounded on
// the pack's audio-mixer segmentHeap (priority + seq ordering via
// container/heap).
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].DeadlineFrame != h[j].DeadlineFrame {
		return h[i].DeadlineFrame < h[j].DeadlineFrame
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*Task))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ = heap.Interface(&taskHeap{})
