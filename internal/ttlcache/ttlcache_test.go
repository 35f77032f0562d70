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

package ttlcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheSetHas(t *testing.T) {
	c := New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("shard-0")
	assert.True(t, c.Has("shard-0"))
	assert.False(t, c.Has("shard-1"))
	assert.Equal(t, 1, c.Count())
}

func TestCacheExpires(t *testing.T) {
	c := New[string](20 * time.Millisecond)
	defer c.Close()

	c.Set("shard-0")
	time.Sleep(40 * time.Millisecond)
	assert.False(t, c.Has("shard-0"))
}
