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

// Package server is the socket I/O layer around the parser: it owns the
// listener, one goroutine per client connection, and the lazily-dialed
// backend connections each client connection forwards to.
package server

import (
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/zhaojp0411/twemproxy/confengine"
	"github.com/zhaojp0411/twemproxy/fragment"
	"github.com/zhaojp0411/twemproxy/internal/fasttime"
	"github.com/zhaojp0411/twemproxy/internal/rescue"
	"github.com/zhaojp0411/twemproxy/internal/ttlcache"
	"github.com/zhaojp0411/twemproxy/logger"
	"github.com/zhaojp0411/twemproxy/mbuf"
	"github.com/zhaojp0411/twemproxy/protocol/redis"
	"github.com/zhaojp0411/twemproxy/queue"
	"github.com/zhaojp0411/twemproxy/router"
)

// Proxy accepts client connections and forwards each parsed request to the
// shard its key hashes to, fragmenting multi-key commands as needed.
type Proxy struct {
	cfg    Config
	router *router.Router
	admin  *Admin

	// down remembers shard names that failed a dial or round-trip recently,
	// so a burst of requests doesn't pile up retrying a dead backend.
	down *ttlcache.Cache[string]

	// sem caps concurrently served client connections at cfg maxClients
	sem chan struct{}

	ln net.Listener
	wg sync.WaitGroup
}

// New builds a Proxy from the "proxy" section of conf.
func New(conf *confengine.Config) (*Proxy, error) {
	cfg, err := LoadConfig(conf)
	if err != nil {
		return nil, errors.Wrap(err, "unpack proxy config")
	}
	if cfg.Listen == "" {
		return nil, errors.New("proxy: listen address is required")
	}
	if len(cfg.Shards) == 0 {
		return nil, errors.New("proxy: at least one shard is required")
	}

	admin := NewAdmin(cfg.Admin)

	return &Proxy{
		cfg:    cfg,
		router: router.New(cfg.shards()),
		admin:  admin,
		down:   ttlcache.New[string](cfg.ShardFailTTL),
		sem:    make(chan struct{}, cfg.maxClients()),
	}, nil
}

// Start opens the listener and begins accepting connections. It returns
// once the listener is open; connection handling happens in background
// goroutines.
func (p *Proxy) Start() error {
	ln, err := net.Listen("tcp", p.cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", p.cfg.Listen)
	}
	p.ln = ln
	logger.Infof("proxy listening on %s with %d shards", p.cfg.Listen, len(p.cfg.Shards))

	if p.admin != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer rescue.HandleCrash()
			if err := p.admin.ListenAndServe(); err != nil {
				logger.Errorf("admin server stopped: %v", err)
			}
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.acceptLoop()
	}()
	return nil
}

// Stop closes the listener and the admin server and waits for in-flight
// connection handlers to exit. Open client connections are not closed, so it
// returns only once their clients have disconnected.
func (p *Proxy) Stop() {
	if p.ln != nil {
		_ = p.ln.Close()
	}
	if p.admin != nil {
		p.admin.Close()
	}
	p.down.Close()
	p.wg.Wait()
}

// Reload swaps in a freshly loaded shard set and timeouts. Existing client
// and backend connections keep running against the router/config they
// started with; only new connections see the reloaded config.
func (p *Proxy) Reload(conf *confengine.Config) error {
	cfg, err := LoadConfig(conf)
	if err != nil {
		return errors.Wrap(err, "unpack proxy config")
	}
	p.cfg = cfg
	p.router = router.New(p.cfg.shards())
	return nil
}

func (p *Proxy) acceptLoop() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Errorf("accept: %v", err)
			continue
		}
		select {
		case p.sem <- struct{}{}:
		default:
			// 超过 maxClients 直接拒绝 而不是让新连接排队拖垮已有连接
			_ = conn.Close()
			continue
		}
		connsTotal.Inc()
		connsActive.Inc()
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer func() { <-p.sem }()
			defer connsActive.Dec()
			defer rescue.HandleCrash()
			p.handleConn(conn)
		}()
	}
}

// clientConn bundles one client connection's state: the backend connections it
// has opened so far (one per shard it has needed, kept for its lifetime),
// the read-side parsing buffers, and the in-flight ledger tracking how long
// each request has been waiting on a backend.
type clientConn struct {
	p        *Proxy
	net.Conn
	chain    *mbuf.Chain
	buf      *mbuf.Mbuf
	msg      *redis.Message
	backends map[string]*backendConn
	inflight *queue.Queue
}

func (p *Proxy) handleConn(nc net.Conn) {
	defer nc.Close()

	chain := mbuf.NewChain()
	chain.Push(mbuf.New(p.cfg.readBlockSize()))
	c := &clientConn{
		p:        p,
		Conn:     nc,
		chain:    chain,
		buf:      chain.Last(),
		msg:      redis.NewRequest(),
		backends: make(map[string]*backendConn),
		inflight: queue.New(),
	}
	defer c.closeBackends()

	for {
		if err := c.serveOne(); err != nil {
			if !errors.Is(err, errConnClosed) {
				logger.Debugf("client connection ended: %v", err)
			}
			return
		}
	}
}

var errConnClosed = errors.New("server: connection closed")

// serveOne parses exactly one request off the client connection (growing
// the buffer chain with further reads as needed) and forwards it, writing
// the reply (or a synthetic error reply) back before returning.
func (c *clientConn) serveOne() error {
	result, err := c.parseMore()
	if err != nil {
		return err
	}
	switch result {
	case redis.Ok:
		return c.forwardSingle()

	case redis.Fragment:
		return c.forwardFragment()

	case redis.Error:
		parseErrorsTotal.Inc()
		_, _ = c.Write(encodeError(c.msg.Err.Error()))
		return errors.Wrapf(c.msg.Err, "malformed request")

	default:
		return errors.Errorf("unexpected parse result %v", result)
	}
}

// parseMore drives the parser to its next terminal verdict (Ok, Fragment or
// Error), feeding it more socket bytes on Again and relocating a straddling
// token on Repair.
func (c *clientConn) parseMore() (redis.Result, error) {
	for {
		result := redis.ParseRequest(c.msg, c.buf)
		switch result {
		case redis.Again:
			if err := c.growAndRead(); err != nil {
				return result, err
			}

		case redis.Repair:
			newBuf := c.chain.Repair(c.buf, c.msg.TokenPos())
			c.msg.Rebase(c.msg.TokenPos(), 0)
			c.buf = newBuf
			if err := c.growAndRead(); err != nil {
				return result, err
			}

		default:
			return result, nil
		}
	}
}

// growAndRead reads more bytes from the client socket into the current
// buffer, swapping in a fresh empty buffer first if the current one is
// already full at a clean (non-token) boundary.
func (c *clientConn) growAndRead() error {
	if c.buf.Full() {
		newBuf := c.chain.Repair(c.buf, c.buf.Last())
		c.msg.Rebase(c.buf.Last(), 0)
		c.buf = newBuf
	}
	n, err := c.Read(c.buf.Writable())
	if err != nil {
		return errors.Wrap(errConnClosed, err.Error())
	}
	c.buf.CommitWrite(n)
	return nil
}

func (c *clientConn) forwardSingle() error {
	raw := c.msg.Bytes(c.chain)
	key := c.msg.KeyBytes(c.chain)
	typ := c.msg.Type
	c.buf = redis.Drain(c.chain, c.msg)

	requestsTotal.WithLabelValues(typ.String()).Inc()

	shard, ok := c.p.router.Route(key)
	if !ok {
		_, _ = c.Write(encodeError("no shard available"))
		return nil
	}

	reply, err := c.roundTrip(shard, typ, false, raw)
	if err != nil {
		_, _ = c.Write(encodeError("backend error"))
		return nil
	}
	_, err = c.Write(reply)
	return err
}

// forwardFragment handles a multi-key request: the parser has just framed
// its first key, and the remaining ones are collected by re-entering it
// once per argument, so the request is never required to sit contiguously
// in memory as one byte range.
func (c *clientConn) forwardFragment() error {
	fragmentsTotal.Inc()
	typ := c.msg.Type

	keys := []string{string(c.msg.KeyBytes(c.chain))}
	for {
		c.msg.Refragment()
		result, err := c.parseMore()
		if err != nil {
			return err
		}
		if result == redis.Error {
			parseErrorsTotal.Inc()
			_, _ = c.Write(encodeError(c.msg.Err.Error()))
			return errors.Wrapf(c.msg.Err, "malformed fragmented request")
		}
		keys = append(keys, string(c.msg.KeyBytes(c.chain)))
		if result == redis.Ok {
			break
		}
	}
	c.buf = redis.Drain(c.chain, c.msg)

	requestsTotal.WithLabelValues(typ.String()).Inc()

	tracker, err := fragment.Split(typ, keys, c.p.router)
	if err != nil {
		_, _ = c.Write(encodeError(err.Error()))
		return nil
	}

	for shardName, req := range tracker.Requests() {
		sh, found := shardByName(c.p.router, shardName)
		if !found {
			_, _ = c.Write(encodeError("no shard available"))
			return nil
		}
		reply, err := c.roundTrip(sh, typ, true, req)
		if err != nil {
			_, _ = c.Write(encodeError("backend error"))
			return nil
		}
		if typ == redis.ReqMget {
			values, err := decodeMultibulkValues(reply)
			if err != nil {
				_, _ = c.Write(encodeError("malformed backend reply"))
				return nil
			}
			if err := tracker.FeedMget(shardName, values); err != nil {
				_, _ = c.Write(encodeError(err.Error()))
				return nil
			}
		} else {
			n, err := decodeInteger(reply)
			if err != nil {
				_, _ = c.Write(encodeError("malformed backend reply"))
				return nil
			}
			if err := tracker.FeedDel(shardName, n); err != nil {
				_, _ = c.Write(encodeError(err.Error()))
				return nil
			}
		}
	}

	if typ == redis.ReqMget {
		values, err := tracker.MergeMget()
		if err != nil {
			_, _ = c.Write(encodeError(err.Error()))
			return nil
		}
		_, err = c.Write(encodeMultibulk(values))
		return err
	}

	n, err := tracker.MergeDel()
	if err != nil {
		_, _ = c.Write(encodeError(err.Error()))
		return nil
	}
	_, err = c.Write(encodeInteger(n))
	return err
}

func shardByName(r *router.Router, name string) (router.Shard, bool) {
	for _, s := range r.Shards() {
		if s.Name == name {
			return s, true
		}
	}
	return router.Shard{}, false
}

// roundTrip sends req to shard over this client connection's dedicated
// backend connection, dialing lazily and refusing shards remembered as
// recently down. It pushes an in-flight entry before dispatch and pops it
// after the reply lands, logging when a single round trip alone ate up at
// least the configured budget (a fragmented request always pays for at least
// one such round trip per shard it touches, so this is a leg-level signal,
// not an end-to-end one).
func (c *clientConn) roundTrip(shard router.Shard, typ redis.Type, frag bool, req []byte) ([]byte, error) {
	entry := c.inflight.Push(typ, frag)
	reply, err := c.doRoundTrip(shard, req)
	c.inflight.Pop()

	if age := fasttime.UnixTimestamp() - entry.EnqueuedAt; age >= int64(c.p.cfg.QueueMaxAge.Seconds()) {
		logger.Warnf("shard %s: %s round trip took >=%ds (entry %s)", shard.Name, typ, age, entry.ID)
	}
	return reply, err
}

func (c *clientConn) doRoundTrip(shard router.Shard, req []byte) ([]byte, error) {
	if c.p.down.Has(shard.Name) {
		backendErrorsTotal.WithLabelValues(shard.Name).Inc()
		return nil, errors.Errorf("shard %s is marked down", shard.Name)
	}

	bc, ok := c.backends[shard.Name]
	if !ok {
		var err error
		bc, err = dialBackend(shard, c.p.cfg)
		if err != nil {
			c.p.down.Set(shard.Name)
			backendErrorsTotal.WithLabelValues(shard.Name).Inc()
			return nil, err
		}
		c.backends[shard.Name] = bc
	}

	reply, err := bc.RoundTrip(req)
	if err != nil {
		c.p.down.Set(shard.Name)
		backendErrorsTotal.WithLabelValues(shard.Name).Inc()
		delete(c.backends, shard.Name)
		_ = bc.Close()
		return nil, err
	}
	return reply, nil
}

func (c *clientConn) closeBackends() {
	for _, bc := range c.backends {
		_ = bc.Close()
	}
}
