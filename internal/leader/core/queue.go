// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"sort"

	"ppmleader/internal/leader/vdaf"
	"ppmleader/internal/leader/wire"
)

// PendingEntry is a report the Leader has prepared but not yet verified
// with the Helper (§3). Ordering is defined solely by Timestamp.
type PendingEntry struct {
	Timestamp      wire.Timestamp
	PrepareState   vdaf.PrepareState
	PrepareMessage []byte
	HelperShare    wire.EncryptedInputShare
	Extensions     []wire.ReportExtension
}

// PendingQueue is the time-ordered collection of PendingEntry values
// described in §4.5: sorted on insert, drained all at once. Unlike the
// per-key FIFO queues this is adapted from, entries here share one queue
// per task and are ordered by timestamp rather than arrival.
type PendingQueue struct {
	entries []PendingEntry
}

// NewPendingQueue returns an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{}
}

// Len reports how many entries are queued.
func (q *PendingQueue) Len() int { return len(q.entries) }

// Enqueue inserts an entry at its sorted position (§4.5: "always sorted
// when observed across await boundaries").
func (q *PendingQueue) Enqueue(e PendingEntry) {
	i := sort.Search(len(q.entries), func(i int) bool {
		return e.Timestamp.Less(q.entries[i].Timestamp)
	})
	q.entries = append(q.entries, PendingEntry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
}

// Drain returns every queued entry in sorted order and empties the queue.
// Once drained, an entry is never re-enqueued, regardless of what the
// caller does with the result: each report reaches the Helper at most once.
func (q *PendingQueue) Drain() []PendingEntry {
	out := q.entries
	q.entries = nil
	return out
}
