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

package server

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/zhaojp0411/twemproxy/protocol/redis"
)

// decodeMultibulkValues walks a complete multibulk reply (already validated
// by redis.ParseResponse) and returns its bulk payloads in order, with a nil
// entry for each null bulk ($-1). Re-walking is fine here: the incremental
// state machine intentionally throws away payload content once it has
// confirmed the framing, and a single shard's reply is bounded by the
// handful of keys that were sent to it.
func decodeMultibulkValues(raw []byte) ([][]byte, error) {
	if len(raw) == 0 || raw[0] != '*' {
		return nil, errors.New("server: not a multibulk reply")
	}
	narg, i, err := readLine(raw, 1)
	if err != nil {
		return nil, err
	}
	if narg < 0 {
		return nil, nil // null array
	}

	out := make([][]byte, 0, narg)
	for n := 0; n < narg; n++ {
		if i >= len(raw) || raw[i] != '$' {
			return nil, errors.New("server: expected bulk element in multibulk reply")
		}
		length, next, err := readLine(raw, i+1)
		if err != nil {
			return nil, err
		}
		i = next
		if length < 0 {
			out = append(out, nil)
			continue
		}
		if i+length+2 > len(raw) {
			return nil, errors.New("server: truncated bulk element")
		}
		out = append(out, raw[i:i+length])
		i += length + 2
	}
	return out, nil
}

// decodeInteger parses a complete ":<n>\r\n" reply.
func decodeInteger(raw []byte) (int64, error) {
	if len(raw) == 0 || raw[0] != ':' {
		return 0, errors.New("server: not an integer reply")
	}
	n, _, err := readLine(raw, 1)
	return int64(n), err
}

// readLine reads an optionally-signed decimal integer starting at i up to
// the next CRLF, returning the value and the offset just past it.
func readLine(data []byte, i int) (int, int, error) {
	neg := false
	j := i
	if j < len(data) && data[j] == '-' {
		neg = true
		j++
	}
	start := j
	for j < len(data) && data[j] != redis.CR {
		j++
	}
	if j+1 >= len(data) || data[j] != redis.CR || data[j+1] != redis.LF {
		return 0, 0, errors.New("server: malformed length line")
	}
	if j == start {
		return 0, 0, errors.New("server: empty length line")
	}
	n := 0
	for _, ch := range data[start:j] {
		if ch < '0' || ch > '9' {
			return 0, 0, errors.New("server: non-digit in length line")
		}
		n = n*10 + int(ch-'0')
	}
	if neg {
		n = -n
	}
	return n, j + 2, nil
}

// encodeError renders a client-facing RESP error line.
func encodeError(msg string) []byte {
	return append(append([]byte("-ERR "), msg...), '\r', '\n')
}

// encodeInteger renders a client-facing RESP integer reply.
func encodeInteger(n int64) []byte {
	return append(append([]byte(":"), strconv.FormatInt(n, 10)...), '\r', '\n')
}

// encodeMultibulk renders a client-facing RESP multibulk reply from a slice
// of bulk payloads, using a null bulk ($-1) for any nil entry.
func encodeMultibulk(values [][]byte) []byte {
	out := append([]byte("*"), strconv.Itoa(len(values))...)
	out = append(out, '\r', '\n')
	for _, v := range values {
		if v == nil {
			out = append(out, "$-1\r\n"...)
			continue
		}
		out = append(out, '$')
		out = append(out, strconv.Itoa(len(v))...)
		out = append(out, '\r', '\n')
		out = append(out, v...)
		out = append(out, '\r', '\n')
	}
	return out
}
