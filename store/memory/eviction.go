package memory

import (
	"container/heap"
	"time"
)

// deadline records that key was scheduled to expire at expires. A deadline
// is stale once the key's TTL has been replaced or the key deleted.
type deadline struct {
	expires time.Time
	key     string
}

type deadlineHeap []*deadline

func (dh deadlineHeap) Len() int {
	return len(dh)
}

func (dh deadlineHeap) Less(i, j int) bool {
	return dh[i].expires.Before(dh[j].expires)
}

func (dh deadlineHeap) Swap(i, j int) {
	dh[i], dh[j] = dh[j], dh[i]
}

func (dh *deadlineHeap) Push(e any) {
	*dh = append(*dh, e.(*deadline))
}

func (dh *deadlineHeap) Pop() any {
	n := len(*dh)
	e := (*dh)[n-1]
	(*dh)[n-1] = nil
	*dh = (*dh)[:n-1]
	return e
}

// evictionQueue orders scheduled expirations earliest first.
type evictionQueue struct {
	items deadlineHeap
}

func newEvictionQueue() *evictionQueue {
	eq := new(evictionQueue)
	heap.Init(&eq.items)
	return eq
}

func (eq *evictionQueue) Push(key string, expires time.Time) {
	heap.Push(&eq.items, &deadline{
		expires: expires,
		key:     key,
	})
}

func (eq *evictionQueue) Pop() *deadline {
	return heap.Pop(&eq.items).(*deadline)
}

func (eq *evictionQueue) Peek() *deadline {
	return eq.items[0]
}

func (eq *evictionQueue) Len() int {
	return eq.items.Len()
}
