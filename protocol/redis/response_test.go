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

package redis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaojp0411/twemproxy/mbuf"
)

func feedResponse(t *testing.T, input string) (*Message, Result, *mbuf.Mbuf) {
	t.Helper()
	buf := mbuf.New(4096)
	n := copy(buf.Writable(), input)
	require.Equal(t, len(input), n)
	buf.CommitWrite(n)

	m := NewResponse()
	r := ParseResponse(m, buf)
	return m, r, buf
}

func TestParseResponseStatus(t *testing.T) {
	m, r, buf := feedResponse(t, "+OK\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, RspStatus, m.Type)
	start, end := m.Span()
	assert.Equal(t, "+OK\r\n", string(buf.Slice(start, end)))
}

func TestParseResponseError(t *testing.T) {
	m, r, _ := feedResponse(t, "-ERR wrong number of arguments\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, RspError, m.Type)
}

func TestParseResponseInteger(t *testing.T) {
	m, r, _ := feedResponse(t, ":1000\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, RspInteger, m.Type)
}

func TestParseResponseBulk(t *testing.T) {
	m, r, buf := feedResponse(t, "$3\r\nfoo\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, RspBulk, m.Type)
	start, end := m.Span()
	assert.Equal(t, "$3\r\nfoo\r\n", string(buf.Slice(start, end)))
}

func TestParseResponseNullBulk(t *testing.T) {
	m, r, _ := feedResponse(t, "$-1\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, RspBulk, m.Type)
}

func TestParseResponseMultibulk(t *testing.T) {
	m, r, _ := feedResponse(t, "*2\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, RspMultibulk, m.Type)
}

func TestParseResponseNullMultibulk(t *testing.T) {
	m, r, _ := feedResponse(t, "*-1\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, RspMultibulk, m.Type)
}

func TestParseResponseEmptyMultibulk(t *testing.T) {
	m, r, _ := feedResponse(t, "*0\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, RspMultibulk, m.Type)
}

func TestParseResponseMultibulkWithNullElement(t *testing.T) {
	m, r, _ := feedResponse(t, "*2\r\n$3\r\nfoo\r\n$-1\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, RspMultibulk, m.Type)
}

func TestParseResponseMalformedType(t *testing.T) {
	_, r, _ := feedResponse(t, "?garbage\r\n")
	assert.Equal(t, Error, r)
}

func TestParseResponseChunked(t *testing.T) {
	input := "*2\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"
	buf := mbuf.New(4096)
	m := NewResponse()

	var r Result
	for i := 0; i < len(input); i++ {
		n := copy(buf.Writable(), input[i:i+1])
		require.Equal(t, 1, n)
		buf.CommitWrite(n)
		r = ParseResponse(m, buf)
		if i < len(input)-1 {
			require.Equal(t, Again, r, "byte %d", i)
		}
	}
	require.Equal(t, Ok, r)
	assert.Equal(t, RspMultibulk, m.Type)
	assert.Equal(t, 2, m.Narg())
}

// driveResponse mirrors driveRequest on the response side.
func driveResponse(t *testing.T, input string, bufSize int) (*Message, *mbuf.Chain, Result) {
	t.Helper()
	chain := mbuf.NewChain()
	buf := mbuf.New(bufSize)
	chain.Push(buf)

	m := NewResponse()
	off := 0
	for {
		n := copy(buf.Writable(), input[off:])
		buf.CommitWrite(n)
		off += n

		r := ParseResponse(m, buf)
		switch r {
		case Again:
			require.Less(t, off, len(input), "ran out of input while still Again")
			if buf.Full() {
				newBuf := chain.Repair(buf, buf.Last())
				m.Rebase(buf.Last(), 0)
				buf = newBuf
			}
		case Repair:
			tokenPos := m.TokenPos()
			require.GreaterOrEqual(t, tokenPos, 0)
			newBuf := chain.Repair(buf, tokenPos)
			m.Rebase(tokenPos, 0)
			buf = newBuf
		default:
			return m, chain, r
		}
	}
}

// TestParseResponseRepair straddles a bulk length token across a full
// buffer boundary.
func TestParseResponseRepair(t *testing.T) {
	input := "$10\r\nxxxxxxxxxx\r\n"
	m, chain, r := driveResponse(t, input, 3)
	require.Equal(t, Ok, r)
	assert.Equal(t, RspBulk, m.Type)
	assert.Equal(t, input, string(m.Bytes(chain)))
}

// TestParseResponseLongStatusLine exceeds the buffer size with a plain
// status line; line content is not tokenized, so it streams through on
// clean swaps alone.
func TestParseResponseLongStatusLine(t *testing.T) {
	input := "+" + strings.Repeat("s", 50) + "\r\n"
	m, chain, r := driveResponse(t, input, 16)
	require.Equal(t, Ok, r)
	assert.Equal(t, RspStatus, m.Type)
	assert.Equal(t, input, string(m.Bytes(chain)))
}

// TestParseResponseBulkLargerThanBuffer streams a bulk reply whose payload
// spans several buffers; the payload is skipped by countdown, so only clean
// swaps are needed.
func TestParseResponseBulkLargerThanBuffer(t *testing.T) {
	payload := strings.Repeat("x", 100)
	input := "$100\r\n" + payload + "\r\n"
	m, chain, r := driveResponse(t, input, 32)
	require.Equal(t, Ok, r)
	assert.Equal(t, RspBulk, m.Type)
	assert.Equal(t, input, string(m.Bytes(chain)))
}
