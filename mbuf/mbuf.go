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

// Package mbuf 实现定长缓冲块及其链 供增量解析器在跨缓冲块的字节流上游走
//
// 每个 Mbuf 是一段固定容量的字节切片 配有三个游标:
//
//	pos  读取起点 始终为 0 (解析器的读游标保存在 redis.Message 里 不在这里推进)
//	last 已写入数据的末尾 (pos<=last)
//	cap  缓冲块容量 (last<=cap)
//
// Chain 把若干 Mbuf 串成一条链 解析器在其上逐字节前进 当一个 token
// (例如长度前缀或 key) 跨越缓冲块边界且当前块已读完时 调用 Repair 把
// token 尚未读取的后缀搬到一个新分配的块上 再继续解析 这样解析器本身
// 永远不需要跨块拼接字节
package mbuf

import "github.com/valyala/bytebufferpool"

// DefaultSize 是新分配缓冲块的默认容量 与 common.ReadWriteBlockSize 对齐
const DefaultSize = 4096

var pool bytebufferpool.Pool

// Mbuf 是一个固定容量的缓冲块
type Mbuf struct {
	bb   *bytebufferpool.ByteBuffer
	data []byte
	pos  int
	last int
}

// New 从池中取出一个容量至少为 size 的缓冲块
func New(size int) *Mbuf {
	if size <= 0 {
		size = DefaultSize
	}
	bb := pool.Get()
	if cap(bb.B) < size {
		bb.B = make([]byte, size)
	} else {
		bb.B = bb.B[:size]
	}
	return &Mbuf{bb: bb, data: bb.B[:size], pos: 0, last: 0}
}

// Put 把缓冲块归还给池 归还后不得再使用 m
func (m *Mbuf) Put() {
	if m.bb == nil {
		return
	}
	m.bb.Reset()
	pool.Put(m.bb)
	m.bb = nil
	m.data = nil
}

// Cap 返回缓冲块容量
func (m *Mbuf) Cap() int { return len(m.data) }

// Len 返回 [pos,last) 的字节数 因为 pos 从不推进 也就是已写入的字节数
func (m *Mbuf) Len() int { return m.last - m.pos }

// Full 返回缓冲块是否已写满
func (m *Mbuf) Full() bool { return m.last >= len(m.data) }

// Writable 返回可供网络读取写入的剩余空间
func (m *Mbuf) Writable() []byte { return m.data[m.last:] }

// CommitWrite 记录 n 个字节已被写入 (典型地紧跟在一次 conn.Read 之后调用)
func (m *Mbuf) CommitWrite(n int) { m.last += n }

// At 返回 pos 处的字节 调用方必须确保 pos < last
func (m *Mbuf) At(pos int) byte { return m.data[pos] }

// Slice 返回 [from, to) 范围内的只读字节视图
func (m *Mbuf) Slice(from, to int) []byte { return m.data[from:to] }

// Last 返回已写入数据的末尾位置 (下一次 CommitWrite 之前, 可读数据的上界)
func (m *Mbuf) Last() int { return m.last }

// Compact 把 [consumed,last) 范围内尚未处理的字节搬到缓冲块起始处 空出尾部
// 空间给后续的网络读取 调用方在这之后应当把自己的读游标重置为 0
// (Message.Reset 正是这么做的) 典型地用在一次请求/响应往返处理完毕 但同一个
// mbuf 底层数组里可能已经提前到达了下一条消息的字节 的场景
func (m *Mbuf) Compact(consumed int) {
	if consumed <= 0 {
		return
	}
	n := copy(m.data, m.data[consumed:m.last])
	m.last = n
}

// Chain 是若干 Mbuf 组成的链 解析器把未解析完的输入保留在链上
type Chain struct {
	bufs []*Mbuf
}

// NewChain 创建一条空链
func NewChain() *Chain { return &Chain{} }

// Push 把一个缓冲块追加到链尾
func (c *Chain) Push(m *Mbuf) { c.bufs = append(c.bufs, m) }

// Len 返回链上缓冲块数目
func (c *Chain) Len() int { return len(c.bufs) }

// At 返回链上第 i 个缓冲块
func (c *Chain) At(i int) *Mbuf { return c.bufs[i] }

// Last 返回链上最后一个缓冲块 链为空时返回 nil
func (c *Chain) Last() *Mbuf {
	if len(c.bufs) == 0 {
		return nil
	}
	return c.bufs[len(c.bufs)-1]
}

// DropFront 丢弃链头 n 个已经完全消费的缓冲块 并将其归还给池
func (c *Chain) DropFront(n int) {
	for i := 0; i < n && i < len(c.bufs); i++ {
		c.bufs[i].Put()
	}
	if n >= len(c.bufs) {
		c.bufs = c.bufs[:0]
		return
	}
	c.bufs = append(c.bufs[:0], c.bufs[n:]...)
}

// Collect 把 [startIdx,start) 到 [endIdx,end) 之间横跨的字节按顺序拼成一份
// 拷贝 startIdx==endIdx 时等价于对那一个缓冲块直接做一次 Slice 调用方负责
// 保证 startIdx<=endIdx 且两个下标仍然落在链上 (消息存活期间 DropFront 不会
// 发生 所以这个前提总是成立)
func (c *Chain) Collect(startIdx, start, endIdx, end int) []byte {
	if startIdx == endIdx {
		return append([]byte(nil), c.bufs[startIdx].Slice(start, end)...)
	}
	out := append([]byte(nil), c.bufs[startIdx].Slice(start, c.bufs[startIdx].Last())...)
	for i := startIdx + 1; i < endIdx; i++ {
		out = append(out, c.bufs[i].Slice(0, c.bufs[i].Last())...)
	}
	out = append(out, c.bufs[endIdx].Slice(0, end)...)
	return out
}

// Repair 把 buf 中从 tokenPos 开始尚未读完的字节 (一个跨块 token 的前半部分)
// 搬运到一个新分配的缓冲块 新缓冲块被追加到链尾并返回 供解析器继续在其上
// 读取 token 的剩余部分 原缓冲块的 last 被截断到 tokenPos: 被搬走的字节在
// 链上只存在一份 Collect 按块拼接整条消息时才不会把它们计入两次
//
// 对应 twemproxy 中 msg_repair 用 mbuf_split 把 [pos,last) 切进新 mbuf 并回截
// 旧 mbuf last 的修复逻辑
func (c *Chain) Repair(buf *Mbuf, tokenPos int) *Mbuf {
	n := New(buf.Cap())
	carry := buf.data[tokenPos:buf.last]
	copy(n.data, carry)
	n.last = len(carry)
	buf.last = tokenPos
	c.Push(n)
	return n
}
