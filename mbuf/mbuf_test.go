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

package mbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMbufWriteAndRead(t *testing.T) {
	m := New(8)
	defer m.Put()

	n := copy(m.Writable(), "hello")
	m.CommitWrite(n)

	assert.Equal(t, 8, m.Cap())
	assert.Equal(t, 5, m.Len())
	assert.False(t, m.Full())
	assert.Equal(t, "hello", string(m.Slice(0, m.Last())))
}

func TestMbufFull(t *testing.T) {
	m := New(4)
	defer m.Put()

	n := copy(m.Writable(), "abcd")
	m.CommitWrite(n)
	assert.True(t, m.Full())
}

func TestChainRepair(t *testing.T) {
	chain := NewChain()
	buf := New(8)
	chain.Push(buf)

	n := copy(buf.Writable(), "abcdefgh")
	buf.CommitWrite(n)
	require.True(t, buf.Full())

	next := chain.Repair(buf, 5) // carry over "fgh"
	assert.Equal(t, 2, chain.Len())
	assert.Equal(t, "fgh", string(next.Slice(0, next.Last())))
	// the carried bytes are moved, not copied: the old buffer ends where
	// the token began
	assert.Equal(t, 5, buf.Last())
}

func TestChainDropFront(t *testing.T) {
	chain := NewChain()
	chain.Push(New(4))
	chain.Push(New(4))
	chain.Push(New(4))

	chain.DropFront(2)
	assert.Equal(t, 1, chain.Len())
}
