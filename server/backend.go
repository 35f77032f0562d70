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
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/zhaojp0411/twemproxy/mbuf"
	"github.com/zhaojp0411/twemproxy/protocol/redis"
	"github.com/zhaojp0411/twemproxy/router"
)

// backendConn is one connection to a single backend shard. It is opened
// lazily and kept open for the lifetime of the client connection that owns
// it, one synchronous request/response cycle per call to RoundTrip.
type backendConn struct {
	shard router.Shard
	conn  net.Conn
	chain *mbuf.Chain
	buf   *mbuf.Mbuf
	msg   *redis.Message

	readTimeout  time.Duration
	writeTimeout time.Duration
}

func dialBackend(shard router.Shard, cfg Config) (*backendConn, error) {
	conn, err := net.DialTimeout("tcp", shard.Addr, cfg.DialTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "dial shard %s", shard.Name)
	}
	chain := mbuf.NewChain()
	chain.Push(mbuf.New(cfg.readBlockSize()))
	return &backendConn{
		shard:        shard,
		conn:         conn,
		chain:        chain,
		buf:          chain.Last(),
		msg:          redis.NewResponse(),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}, nil
}

func (b *backendConn) Close() error {
	return b.conn.Close()
}

// RoundTrip sends req and returns the raw bytes of exactly one backend
// reply. The returned slice is a copy: it stays valid across the next call.
func (b *backendConn) RoundTrip(req []byte) ([]byte, error) {
	if b.writeTimeout > 0 {
		_ = b.conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
	}
	if _, err := b.conn.Write(req); err != nil {
		return nil, errors.Wrapf(err, "write to shard %s", b.shard.Name)
	}

	for {
		if b.readTimeout > 0 {
			_ = b.conn.SetReadDeadline(time.Now().Add(b.readTimeout))
		}

		result := redis.ParseResponse(b.msg, b.buf)
		switch result {
		case redis.Ok:
			out := b.msg.Bytes(b.chain)
			b.buf = redis.Drain(b.chain, b.msg)
			return out, nil

		case redis.Again:
			// A clean (non-token) buffer-full boundary can also show up as
			// Again: nothing to repair, but nowhere left to write either.
			if b.buf.Full() {
				newBuf := b.chain.Repair(b.buf, b.buf.Last())
				b.msg.Rebase(b.buf.Last(), 0)
				b.buf = newBuf
			}
			if err := b.fill(); err != nil {
				return nil, err
			}

		case redis.Repair:
			newBuf := b.chain.Repair(b.buf, b.msg.TokenPos())
			b.msg.Rebase(b.msg.TokenPos(), 0)
			b.buf = newBuf
			if err := b.fill(); err != nil {
				return nil, err
			}

		case redis.Error:
			return nil, errors.Wrapf(b.msg.Err, "shard %s sent an unparsable reply", b.shard.Name)

		default:
			return nil, errors.Errorf("shard %s: unexpected parse result %v", b.shard.Name, result)
		}
	}
}

// fill reads more bytes from the backend into the current buffer. A reply
// whose bulk/element payload exceeds one mbuf is not a problem here: those
// payloads are skipped by rlen countdown rather than tokenized (see
// ParseResponse), so the current buffer only ever needs to hold framing
// bytes plus whatever fits of a payload, never the whole payload contiguously.
func (b *backendConn) fill() error {
	n, err := b.conn.Read(b.buf.Writable())
	if err != nil {
		return errors.Wrapf(err, "read from shard %s", b.shard.Name)
	}
	b.buf.CommitWrite(n)
	return nil
}
