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

// feed writes the whole input into one generously-sized buffer and parses it,
// asserting the final verdict. It exercises the single-buffer happy path.
func feed(t *testing.T, input string) (*Message, Result, *mbuf.Mbuf) {
	t.Helper()
	buf := mbuf.New(4096)
	n := copy(buf.Writable(), input)
	require.Equal(t, len(input), n)
	buf.CommitWrite(n)

	m := NewRequest()
	r := ParseRequest(m, buf)
	return m, r, buf
}

func TestParseRequestSimpleGet(t *testing.T) {
	m, r, buf := feed(t, "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, ReqGet, m.Type)
	assert.Equal(t, 2, m.Narg())
	assert.Equal(t, "foo", string(buf.Slice(m.KeyStart, m.KeyEnd)))
	start, end := m.Span()
	assert.Equal(t, "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n", string(buf.Slice(start, end)))
}

func TestParseRequestSetWithValue(t *testing.T) {
	m, r, buf := feed(t, "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, ReqSet, m.Type)
	assert.Equal(t, "foo", string(buf.Slice(m.KeyStart, m.KeyEnd)))
}

func TestParseRequestArgNSadd(t *testing.T) {
	m, r, _ := feed(t, "*4\r\n$4\r\nSADD\r\n$3\r\nfoo\r\n$1\r\na\r\n$1\r\nb\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, ReqSadd, m.Type)
}

// TestParseRequestArgXMget pins down the fragment cue protocol: the first
// call returns Fragment right after the first key, with the other key still
// untouched in the buffer; each Refragment round then consumes exactly one
// more key, the last one finishing with Ok.
func TestParseRequestArgXMget(t *testing.T) {
	m, r, buf := feed(t, "*3\r\n$4\r\nMGET\r\n$1\r\na\r\n$1\r\nb\r\n")
	require.Equal(t, Fragment, r)
	assert.Equal(t, ReqMget, m.Type)
	assert.Equal(t, 3, m.Narg())
	assert.Equal(t, 1, m.Rnarg())
	assert.Equal(t, "a", string(buf.Slice(m.KeyStart, m.KeyEnd)))
	// pos is pinned on the '$' of the next argument
	_, cue := m.Span()
	assert.Equal(t, "$1\r\nb\r\n", string(buf.Slice(cue, buf.Last())))

	m.Refragment()
	require.Equal(t, Ok, ParseRequest(m, buf))
	assert.Equal(t, "b", string(buf.Slice(m.KeyStart, m.KeyEnd)))
	assert.Equal(t, 0, m.Rnarg())
}

// TestParseRequestArgXSingleKey: a one-key MGET/DEL has nothing to split,
// so it frames as a plain single-key request.
func TestParseRequestArgXSingleKey(t *testing.T) {
	m, r, buf := feed(t, "*2\r\n$3\r\nDEL\r\n$1\r\na\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, ReqDel, m.Type)
	assert.Equal(t, "a", string(buf.Slice(m.KeyStart, m.KeyEnd)))
}

func TestParseRequestArgXDel(t *testing.T) {
	m, r, buf := feed(t, "*4\r\n$3\r\nDEL\r\n$1\r\na\r\n$1\r\nb\r\n$1\r\nc\r\n")

	var keys []string
	for {
		if r == Fragment {
			keys = append(keys, string(buf.Slice(m.KeyStart, m.KeyEnd)))
			m.Refragment()
			r = ParseRequest(m, buf)
			continue
		}
		require.Equal(t, Ok, r)
		keys = append(keys, string(buf.Slice(m.KeyStart, m.KeyEnd)))
		break
	}
	assert.Equal(t, ReqDel, m.Type)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestParseRequestLinsertIsError(t *testing.T) {
	_, r, _ := feed(t, "*5\r\n$7\r\nLINSERT\r\n$3\r\nfoo\r\n$6\r\nBEFORE\r\n$1\r\na\r\n$1\r\nb\r\n")
	assert.Equal(t, Error, r)
}

func TestParseRequestUnknownCommand(t *testing.T) {
	_, r, _ := feed(t, "*1\r\n$8\r\nFLUSHALL\r\n")
	assert.Equal(t, Error, r)
}

func TestParseRequestWrongArity(t *testing.T) {
	// GET (Arg1) given two arguments after the command name
	_, r, _ := feed(t, "*3\r\n$3\r\nGET\r\n$1\r\na\r\n$1\r\nb\r\n")
	assert.Equal(t, Error, r)
}

func TestParseRequestMalformedNotArray(t *testing.T) {
	_, r, _ := feed(t, "$3\r\nGET\r\n")
	assert.Equal(t, Error, r)
}

func TestParseRequestEmptyKey(t *testing.T) {
	_, r, _ := feed(t, "*2\r\n$3\r\nGET\r\n$0\r\n\r\n")
	assert.Equal(t, Error, r)
}

func TestParseRequestEmptyTrailingArgAllowed(t *testing.T) {
	// SET foo "" is a legal request: only command name and key demand a
	// non-zero length
	m, r, _ := feed(t, "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$0\r\n\r\n")
	require.Equal(t, Ok, r)
	assert.Equal(t, ReqSet, m.Type)
}

// TestParseRequestEmptyBufferAgain checks the no-op contract: a fresh
// message over a buffer with nothing to read just asks for more bytes.
func TestParseRequestEmptyBufferAgain(t *testing.T) {
	buf := mbuf.New(64)
	m := NewRequest()
	assert.Equal(t, Again, ParseRequest(m, buf))
	assert.Equal(t, Unknown, m.Type)
}

// TestParseRequestChunked delivers the same request one byte at a time into
// the same buffer, and expects Again on every byte except the last.
func TestParseRequestChunked(t *testing.T) {
	input := "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"
	buf := mbuf.New(4096)
	m := NewRequest()

	var r Result
	for i := 0; i < len(input); i++ {
		n := copy(buf.Writable(), input[i:i+1])
		require.Equal(t, 1, n)
		buf.CommitWrite(n)
		r = ParseRequest(m, buf)
		if i < len(input)-1 {
			require.Equal(t, Again, r, "byte %d", i)
		}
	}
	require.Equal(t, Ok, r)
	assert.Equal(t, ReqGet, m.Type)
	assert.Equal(t, "foo", string(buf.Slice(m.KeyStart, m.KeyEnd)))
}

// TestParseRequestArgXChunked delivers a multi-key request one byte at a
// time: the Fragment cue only fires once the byte after the first key's LF
// has arrived, and each Refragment round keeps answering Again until its
// own argument is complete.
func TestParseRequestArgXChunked(t *testing.T) {
	input := "*3\r\n$4\r\nMGET\r\n$1\r\na\r\n$1\r\nb\r\n"
	buf := mbuf.New(4096)
	m := NewRequest()

	var keys []string
	for i := 0; i < len(input); i++ {
		n := copy(buf.Writable(), input[i:i+1])
		require.Equal(t, 1, n)
		buf.CommitWrite(n)

		r := ParseRequest(m, buf)
		switch r {
		case Again:
		case Fragment:
			keys = append(keys, string(buf.Slice(m.KeyStart, m.KeyEnd)))
			m.Refragment()
		case Ok:
			require.Equal(t, len(input)-1, i, "framed before the last byte")
			keys = append(keys, string(buf.Slice(m.KeyStart, m.KeyEnd)))
		default:
			t.Fatalf("unexpected result %v at byte %d", r, i)
		}
	}
	assert.Equal(t, []string{"a", "b"}, keys)
}

// driveRequest plays the I/O layer: it writes input into small buffers and
// keeps calling the parser, relocating a straddling token on Repair and
// swapping in a fresh buffer on a clean buffer-full boundary, exactly the
// way the server's read loop does.
func driveRequest(t *testing.T, input string, bufSize int) (*Message, *mbuf.Chain, Result) {
	t.Helper()
	chain := mbuf.NewChain()
	buf := mbuf.New(bufSize)
	chain.Push(buf)

	m := NewRequest()
	off := 0
	for {
		n := copy(buf.Writable(), input[off:])
		buf.CommitWrite(n)
		off += n

		r := ParseRequest(m, buf)
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

// TestParseRequestRepair forces the key token to straddle a tiny buffer's
// capacity, exercising the Repair verdict and the Chain.Repair/Rebase dance.
func TestParseRequestRepair(t *testing.T) {
	// capacity 20 lands the buffer boundary inside "hello"
	m, chain, r := driveRequest(t, "*2\r\n$3\r\nGET\r\n$5\r\nhello\r\n", 20)

	require.Equal(t, Ok, r)
	assert.Equal(t, ReqGet, m.Type)
	assert.Equal(t, "hello", string(m.KeyBytes(chain)))
	assert.Equal(t, "*2\r\n$3\r\nGET\r\n$5\r\nhello\r\n", string(m.Bytes(chain)))
}

// TestParseRequestBulkLargerThanBuffer streams a SET whose value is several
// times the buffer capacity; the value is skipped by countdown rather than
// tokenized, so crossing each buffer needs only a clean swap, never Repair.
func TestParseRequestBulkLargerThanBuffer(t *testing.T) {
	value := strings.Repeat("v", 100)
	input := "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$100\r\n" + value + "\r\n"

	m, chain, r := driveRequest(t, input, 32)
	require.Equal(t, Ok, r)
	assert.Equal(t, ReqSet, m.Type)
	assert.Equal(t, "foo", string(m.KeyBytes(chain)))
	assert.Equal(t, input, string(m.Bytes(chain)))
}
