package extsort

import "github.com/hupe1980/plotgen/internal/record"

// head is the current smallest unread record of one run.
type head struct {
	rec record.Record
	run int
}

// mergeHeap is a value-based min-heap of run heads ordered by hash, then by
// run index. Runs are numbered in input order, so ties keep stream order.
type mergeHeap struct {
	items []head
}

func newMergeHeap(capacity int) *mergeHeap {
	return &mergeHeap{items: make([]head, 0, capacity)}
}

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) Push(item head) {
	h.items = append(h.items, item)
	h.siftUp(len(h.items) - 1)
}

// Pop removes and returns the smallest head.
func (h *mergeHeap) Pop() (head, bool) {
	n := len(h.items)
	if n == 0 {
		return head{}, false
	}
	root := h.items[0]
	last := h.items[n-1]
	h.items[n-1] = head{}
	h.items = h.items[:n-1]
	if n-1 > 0 {
		h.items[0] = last
		h.siftDown(0)
	}
	return root, true
}

func (h *mergeHeap) less(i, j int) bool {
	if c := record.Compare(h.items[i].rec, h.items[j].rec); c != 0 {
		return c < 0
	}
	return h.items[i].run < h.items[j].run
}

func (h *mergeHeap) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !h.less(i, p) {
			return
		}
		h.items[i], h.items[p] = h.items[p], h.items[i]
		i = p
	}
}

func (h *mergeHeap) siftDown(i int) {
	n := len(h.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		r := l + 1
		if r < n && h.less(r, l) {
			best = r
		}
		if !h.less(best, i) {
			return
		}
		h.items[i], h.items[best] = h.items[best], h.items[i]
		i = best
	}
}
