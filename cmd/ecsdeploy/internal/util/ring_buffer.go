// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"sync"
)

// =============================================================================
// Ring Buffer
// =============================================================================

// RingBuffer is a thread-safe, fixed-size circular buffer.
//
// # Description
//
// When full, Push overwrites the oldest item and counts the drop. Items are
// returned oldest first.
//
// # Example
//
//	buffer := NewRingBuffer[string](3)
//	for _, s := range []string{"a", "b", "c", "d"} {
//	    buffer.Push(s)
//	}
//	buffer.Items()        // ["b", "c", "d"]
//	buffer.DroppedCount() // 1
//
// # Limitations
//
//   - Fixed capacity, pre-allocated at creation
type RingBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int
	size     int
	capacity int
	dropped  int64
}

// NewRingBuffer creates a ring buffer holding at most capacity items.
//
// Panics if capacity is not positive.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("util: ring buffer capacity must be positive")
	}
	return &RingBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends item, dropping the oldest item if the buffer is full.
// Returns true if an item was dropped.
func (r *RingBuffer[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.size) % r.capacity
	r.items[tail] = item
	if r.size < r.capacity {
		r.size++
		return false
	}
	r.head = (r.head + 1) % r.capacity
	r.dropped++
	return true
}

// Items returns a copy of the buffered items, oldest first, without
// removing them.
func (r *RingBuffer[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%r.capacity]
	}
	return out
}

// DroppedCount returns how many items were overwritten since creation.
func (r *RingBuffer[T]) DroppedCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
