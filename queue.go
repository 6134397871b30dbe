package main

import "sync"

// notificationQueue is a FIFO with many producers and one consumer. Producers
// only append; the consumer pops from the head and marks later entries as
// merged in place.
type notificationQueue struct {
	mu    sync.Mutex
	items []*pendingNotification
}

func (q *notificationQueue) Push(p *pendingNotification) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
}

func (q *notificationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// pop removes and returns the first entry that was not merged into an earlier
// one. Merged entries encountered on the way are discarded.
func (q *notificationQueue) pop() (head *pendingNotification, skipped int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) > 0 {
		p := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		if p.merged {
			skipped++
			continue
		}
		return p, skipped
	}
	return nil, skipped
}

// absorb marks every unmerged queued entry of head's kind as merged and
// appends its payload to head's children, preserving admission order.
func (q *notificationQueue) absorb(head *pendingNotification) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, p := range q.items {
		if p.merged || p.kind != head.kind {
			continue
		}
		p.merged = true
		head.children = append(head.children, p.payload)
		n++
	}
	return n
}
