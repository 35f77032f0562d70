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

package router

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShards() []Shard {
	return []Shard{
		{Name: "shard-0", Addr: "127.0.0.1:6379"},
		{Name: "shard-1", Addr: "127.0.0.1:6380"},
		{Name: "shard-2", Addr: "127.0.0.1:6381"},
	}
}

func TestRouterIsDeterministic(t *testing.T) {
	r := New(testShards())

	s1, ok := r.Route([]byte("foo"))
	require.True(t, ok)
	s2, ok := r.Route([]byte("foo"))
	require.True(t, ok)
	assert.Equal(t, s1, s2)
}

func TestRouterDistributesKeys(t *testing.T) {
	r := New(testShards())

	seen := make(map[string]int)
	for i := 0; i < 300; i++ {
		s, ok := r.Route([]byte(fmt.Sprintf("key-%d", i)))
		require.True(t, ok)
		seen[s.Name]++
	}
	assert.Len(t, seen, 3)
}

func TestRouterEmpty(t *testing.T) {
	r := New(nil)
	_, ok := r.Route([]byte("foo"))
	assert.False(t, ok)
}

func TestRouterAddMinimizesMovement(t *testing.T) {
	r := New(testShards())

	before := make(map[string]string, 300)
	for i := 0; i < 300; i++ {
		key := fmt.Sprintf("key-%d", i)
		s, _ := r.Route([]byte(key))
		before[key] = s.Name
	}

	r.Add(Shard{Name: "shard-3", Addr: "127.0.0.1:6382"})

	moved := 0
	for key, want := range before {
		s, ok := r.Route([]byte(key))
		require.True(t, ok)
		if s.Name != want {
			moved++
		}
	}
	// adding one shard to four should only reassign roughly 1/4 of keys
	assert.Less(t, moved, 300)
}
