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

// Package fragment splits a multi-key request (MGET, DEL) into one
// synthetic sub-request per backend shard, and recomposes the per-shard
// replies back into a single client-facing reply in the caller's original
// key order.
//
// The parser's Fragment verdict only tells the caller "this is a multi-key
// command, split it yourself" — this package is that "yourself". It plays
// the role of twemproxy's frag_owner/nfrag/frag_id bookkeeping: a Tracker
// is one fragmented client request's worth of it.
package fragment

import (
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/zhaojp0411/twemproxy/protocol/redis"
	"github.com/zhaojp0411/twemproxy/router"
)

const crlf = "\r\n"

// reply holds whatever a single shard answered for its slice of the keys
type reply struct {
	values map[string][]byte // ReqMget: key -> bulk payload (nil means a null bulk)
	count  int64             // ReqDel: number of keys this shard actually removed
}

// Tracker follows one fragmented client request across all the shards it was
// split to, until every shard has answered and the reply can be merged back
// into the original key order.
type Tracker struct {
	cmd       redis.Type
	keys      []string            // original, client-supplied order
	shardOf   map[string]string   // key -> owning shard name
	shardKeys map[string][]string // shard name -> its slice of keys, in request order
	requests  map[string][]byte   // shard name -> synthetic RESP request to send it
	replies   map[string]reply
	pending   int
}

// Split groups keys by shard and builds one synthetic request per shard.
// cmd must be ReqMget or ReqDel; anything else is a programmer error since
// the parser never returns Fragment for any other command.
func Split(cmd redis.Type, keys []string, rt *router.Router) (*Tracker, error) {
	if cmd != redis.ReqMget && cmd != redis.ReqDel {
		return nil, errors.Errorf("fragment: unsupported command %v", cmd)
	}
	if len(keys) == 0 {
		return nil, errors.New("fragment: no keys to split")
	}

	t := &Tracker{
		cmd:       cmd,
		keys:      append([]string(nil), keys...),
		shardOf:   make(map[string]string, len(keys)),
		shardKeys: make(map[string][]string),
		requests:  make(map[string][]byte),
		replies:   make(map[string]reply),
	}

	var merr *multierror.Error
	for _, k := range keys {
		shard, ok := rt.Route([]byte(k))
		if !ok {
			merr = multierror.Append(merr, errors.Errorf("fragment: no shard for key %q", k))
			continue
		}
		t.shardOf[k] = shard.Name
		t.shardKeys[shard.Name] = append(t.shardKeys[shard.Name], k)
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}

	for name, ks := range t.shardKeys {
		t.requests[name] = buildWire(cmd, ks)
	}
	t.pending = len(t.requests)
	return t, nil
}

// buildWire renders a synthetic MGET/DEL request carrying only the keys
// destined for one shard.
func buildWire(cmd redis.Type, keys []string) []byte {
	name := "mget"
	if cmd == redis.ReqDel {
		name = "del"
	}

	var b []byte
	b = append(b, '*')
	b = append(b, strconv.Itoa(len(keys)+1)...)
	b = append(b, crlf...)
	b = append(b, '$')
	b = append(b, strconv.Itoa(len(name))...)
	b = append(b, crlf...)
	b = append(b, name...)
	b = append(b, crlf...)
	for _, k := range keys {
		b = append(b, '$')
		b = append(b, strconv.Itoa(len(k))...)
		b = append(b, crlf...)
		b = append(b, k...)
		b = append(b, crlf...)
	}
	return b
}

// Requests returns the synthetic per-shard requests the caller must send.
func (t *Tracker) Requests() map[string][]byte { return t.requests }

// Pending returns how many shard replies are still outstanding.
func (t *Tracker) Pending() int { return t.pending }

// Done reports whether every shard has answered.
func (t *Tracker) Done() bool { return t.pending == 0 }

// FeedMget records one shard's MGET reply. values must be in the same order
// as the keys that were sent to that shard (Tracker.Requests preserves it).
func (t *Tracker) FeedMget(shard string, values [][]byte) error {
	keys := t.shardKeys[shard]
	if len(values) != len(keys) {
		return errors.Errorf("fragment: shard %s returned %d values, want %d", shard, len(values), len(keys))
	}
	r := reply{values: make(map[string][]byte, len(keys))}
	for i, k := range keys {
		r.values[k] = values[i]
	}
	t.markAnswered(shard, r)
	return nil
}

// FeedDel records one shard's DEL reply (the count of keys it removed).
func (t *Tracker) FeedDel(shard string, count int64) error {
	t.markAnswered(shard, reply{count: count})
	return nil
}

func (t *Tracker) markAnswered(shard string, r reply) {
	if _, ok := t.replies[shard]; !ok {
		t.pending--
	}
	t.replies[shard] = r
}

// MergeMget recomposes the per-shard bulk values into the client's original
// key order. Must be called only once Done() is true.
func (t *Tracker) MergeMget() ([][]byte, error) {
	out := make([][]byte, len(t.keys))
	for i, k := range t.keys {
		shard := t.shardOf[k]
		r, ok := t.replies[shard]
		if !ok {
			return nil, errors.Errorf("fragment: missing reply from shard %s", shard)
		}
		v, ok := r.values[k]
		if !ok {
			return nil, errors.Errorf("fragment: shard %s has no value for key %q", shard, k)
		}
		out[i] = v
	}
	return out, nil
}

// MergeDel sums the per-shard deleted counts. Must be called only once
// Done() is true.
func (t *Tracker) MergeDel() (int64, error) {
	var total int64
	counted := make(map[string]bool, len(t.shardKeys))
	for _, shard := range t.shardOf {
		if counted[shard] {
			continue
		}
		counted[shard] = true
		r, ok := t.replies[shard]
		if !ok {
			return 0, errors.Errorf("fragment: missing reply from shard %s", shard)
		}
		total += r.count
	}
	return total, nil
}
