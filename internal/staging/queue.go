package staging

import (
	"container/heap"
	"time"
)

// expiryItem — пара (срок, идентификатор) в очереди истечения.
type expiryItem struct {
	id        string
	expiresAt time.Time
}

// expiryHeap реализует heap.Interface: минимум — ближайший срок.
type expiryHeap []expiryItem

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *expiryHeap) Push(x any) {
	*h = append(*h, x.(expiryItem))
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// expiryQueue — обёртка над container/heap. Не потокобезопасна,
// вызывается под Store.mu.
type expiryQueue struct {
	items expiryHeap
}

func (q *expiryQueue) Len() int {
	return q.items.Len()
}

func (q *expiryQueue) push(item expiryItem) {
	heap.Push(&q.items, item)
}

func (q *expiryQueue) peek() expiryItem {
	return q.items[0]
}

func (q *expiryQueue) pop() expiryItem {
	return heap.Pop(&q.items).(expiryItem)
}
