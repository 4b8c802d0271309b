// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package propagation

import "container/heap"

// queueItem wraps a message with the admission sequence used for FIFO
// ordering among equal priorities.
type queueItem struct {
	msg Message
	seq uint64
}

// messageQueue is a bounded max-heap on message priority. Not
// goroutine-safe; the bus serializes access under its lock.
type messageQueue struct {
	items   []queueItem
	max     int
	nextSeq uint64
}

func newMessageQueue(max int) *messageQueue {
	return &messageQueue{max: max}
}

func (q *messageQueue) Len() int { return len(q.items) }

func (q *messageQueue) Less(i, j int) bool {
	if q.items[i].msg.Priority != q.items[j].msg.Priority {
		return q.items[i].msg.Priority > q.items[j].msg.Priority
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *messageQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *messageQueue) Push(x any) {
	q.items = append(q.items, x.(queueItem))
}

func (q *messageQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// push enqueues a message. When the queue is full the lowest-priority
// message (latest-admitted among ties) is evicted to make room; the
// evicted message is returned with true. A message that cannot beat the
// existing minimum evicts itself.
func (q *messageQueue) push(msg Message) (Message, bool) {
	item := queueItem{msg: msg, seq: q.nextSeq}
	q.nextSeq++

	if q.max <= 0 || len(q.items) < q.max {
		heap.Push(q, item)
		return Message{}, false
	}

	lowest := q.lowestIndex()
	if !q.beats(item, q.items[lowest]) {
		return msg, true
	}
	evicted := q.items[lowest].msg
	q.items[lowest] = item
	heap.Fix(q, lowest)
	return evicted, true
}

// pop removes and returns the highest-priority message.
func (q *messageQueue) pop() (Message, bool) {
	if len(q.items) == 0 {
		return Message{}, false
	}
	item := heap.Pop(q).(queueItem)
	return item.msg, true
}

// lowestIndex scans the heap's leaf half for the drain-last element.
func (q *messageQueue) lowestIndex() int {
	lowest := len(q.items) - 1
	for i := len(q.items) / 2; i < len(q.items); i++ {
		if !q.beats(q.items[i], q.items[lowest]) {
			lowest = i
		}
	}
	return lowest
}

// beats reports whether a drains before b.
func (q *messageQueue) beats(a, b queueItem) bool {
	if a.msg.Priority != b.msg.Priority {
		return a.msg.Priority > b.msg.Priority
	}
	return a.seq < b.seq
}
