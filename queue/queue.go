// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue is a FIFO ledger of in-flight requests.
//
// Each entry records the request's command type, whether it is one leg of a
// fragmented request, and when it was pushed. Entries carry no reference to
// a client connection or a fragment Tracker. The server keeps one Queue per
// client connection and uses it to time each backend round trip.
package queue

import (
	"sync"

	"github.com/google/uuid"

	"github.com/zhaojp0411/twemproxy/internal/fasttime"
	"github.com/zhaojp0411/twemproxy/protocol/redis"
)

// Entry is one in-flight request awaiting its reply.
type Entry struct {
	ID         string     // uuid, useful for log correlation
	Type       redis.Type // classified command
	Fragment   bool       // true if this entry is one leg of a fragmented request
	EnqueuedAt int64      // fasttime.UnixTimestamp() at Push time
}

// Queue is a FIFO of in-flight Entry values for a single connection.
// The zero value is not usable; use New.
type Queue struct {
	mu      sync.Mutex
	entries []*Entry
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Push enqueues a new in-flight entry for t and returns it.
func (q *Queue) Push(t redis.Type, fragment bool) *Entry {
	e := &Entry{
		ID:         uuid.NewString(),
		Type:       t,
		Fragment:   fragment,
		EnqueuedAt: fasttime.UnixTimestamp(),
	}
	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.mu.Unlock()
	return e
}

// Pop removes and returns the oldest in-flight entry, matching the order a
// single backend connection answers pipelined requests in. It returns false
// if the queue is empty (a reply arrived with nothing outstanding).
func (q *Queue) Pop() (*Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}

// Len returns the number of in-flight entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Expired returns every in-flight entry that has been outstanding for
// maxAgeSeconds or longer, oldest first. The entries stay in the queue.
func (q *Queue) Expired(maxAgeSeconds int64) []*Entry {
	now := fasttime.UnixTimestamp()
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Entry
	for _, e := range q.entries {
		if now-e.EnqueuedAt >= maxAgeSeconds {
			out = append(out, e)
		}
	}
	return out
}
