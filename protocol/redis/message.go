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

import "github.com/zhaojp0411/twemproxy/mbuf"

// Result 是一次 Parse* 调用的结论 对应 twemproxy 里 parse_request/parse_response
// 返回的 enum { PARSE_OK, PARSE_ERROR, PARSE_AGAIN, PARSE_REPAIR, PARSE_FRAGMENT }
type Result int

const (
	// Again 缓冲块内数据不足以推进状态机 调用方应当向同一缓冲块追加更多字节后重试
	Again Result = iota
	// Ok 一条完整的消息已经解析完毕 [start,end) 就是它在缓冲块里的范围
	Ok
	// Repair 当前 token 跨越了缓冲块边界且当前缓冲块已写满 调用方需要分配新的
	// 缓冲块 把 token 尚未读取的部分搬过去 再用新缓冲块继续调用 Parse*
	Repair
	// Fragment 请求是一个多 key 命令 (ArgX) 且刚刚收尾了一个 key 调用方取走
	// 它之后用 Refragment 重新进入解析器 逐个消费剩余参数
	Fragment
	// Error 输入不符合协议 或者命中了未实现的分类 (例如 LINSERT)
	Error
)

func (r Result) String() string {
	switch r {
	case Again:
		return "again"
	case Ok:
		return "ok"
	case Repair:
		return "repair"
	case Fragment:
		return "fragment"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Message 是增量解析器的状态 在多次 Parse* 调用之间存活 一条消息从第一个
// 字节到最后一个字节可能跨越好几次 Read 调用 也可能跨越好几个 mbuf.Mbuf
//
// 所有位置字段都是相对"当前缓冲块"的字节偏移量 而不是 twemproxy 里的裸指针:
// 当 Repair 把 token 尚未读完的部分搬到新缓冲块后 调用方用 Rebase 把 pos/token
// 平移进新缓冲块的坐标系
type Message struct {
	Request bool // true 表示这是请求消息 false 表示响应消息

	state int // 当前状态机所处状态 请求和响应各自的状态编号空间互不相通

	pos   int  // 下一个待读取字节的位置
	token int  // 当前 token 的起始位置 -1 表示不在 token 中
	start int  // 整条消息起始位置 (Ok/Error 时用来切出消息范围)

	rlen     int  // 当前正在读取的长度前缀 ($<rlen>) 的累加值
	narg     int  // 总参数个数 (*<narg>)
	rnarg    int  // 还未消费的参数个数 从 *N 头初始化 每消费一个 $len 头减一
	keysSeen int  // 请求里已经读完的 bulk string 个数 用来判定"第一个是 key"
	neg      bool // 响应里正在读取的数字 token 是否带负号 (null bulk/array)

	// lastBuf/curBufIdx 给"当前正在读取的缓冲块"编号: 每次传入 Parse* 的
	// buf 指针跟上一次不同 (意味着 Repair 往链上追加了一个新块) 就递增一次
	// 编号 start/key 各自记录自己被设置时的编号 这样即便后续 Repair 把
	// token/pos 搬到了更新的块上 start/key 仍然能正确地在"自己的那个块"里
	// 找到原始字节 因为 Drain 总是在一条消息解析完毕之后才丢弃旧块 消息
	// 存活期间链上的块只增不减 编号与 Chain 里的下标天然一致
	lastBuf   *mbuf.Mbuf
	curBufIdx int
	startBuf  int // start 所在的缓冲块编号
	keyBuf    int // KeyStart/KeyEnd 所在的缓冲块编号

	Type     Type // 命令分类 (请求) 或应答形式 (响应)
	KeyStart int  // 请求里 key 在其所在缓冲块中的起始位置
	KeyEnd   int  // 请求里 key 在其所在缓冲块中的结束位置 (不含)

	Err error // Result == Error 时的原因
}

// NewRequest 创建一个空的请求解析状态 随时可以喂入第一个缓冲块
func NewRequest() *Message {
	return &Message{Request: true, state: swReqStart, token: -1}
}

// NewResponse 创建一个空的响应解析状态
func NewResponse() *Message {
	return &Message{Request: false, state: swRspStart, token: -1}
}

// Reset 把消息状态恢复到初始状态 以便复用同一个 Message 解析下一条消息
// (Ok/Error 返回之后调用)
func (m *Message) Reset() {
	m.state = swReqStart
	if !m.Request {
		m.state = swRspStart
	}
	m.pos = 0
	m.token = -1
	m.start = 0
	m.rlen = 0
	m.narg = 0
	m.rnarg = 0
	m.keysSeen = 0
	m.neg = false
	m.lastBuf = nil
	m.curBufIdx = 0
	m.startBuf = 0
	m.keyBuf = 0
	m.Type = Unknown
	m.KeyStart = 0
	m.KeyEnd = 0
	m.Err = nil
}

// trackBuf 在每次 Parse* 调用入口处调用 发现 buf 跟上一次不同就递增缓冲块
// 编号 用来给 start/key 打上"它们所在的缓冲块是哪一个"的标记
func (m *Message) trackBuf(buf *mbuf.Mbuf) {
	switch m.lastBuf {
	case nil:
		m.lastBuf = buf
	case buf:
	default:
		m.curBufIdx++
		m.lastBuf = buf
	}
}

// Rebase 在 Repair 之后调用 把 token/pos 从旧缓冲块的坐标系平移到新缓冲块
// newPos 是 token 起点在新缓冲块里的位置 (通常是 0) start/KeyStart/KeyEnd
// 不在这里平移: 它们记录在各自的 startBuf/keyBuf 编号所指向的缓冲块里 那个
// 缓冲块本身并没有移动或被改写 只是不再是解析器当前读取的块 平移它们的坐标
// 反而会把它们指向错误的位置
func (m *Message) Rebase(oldTokenPos, newPos int) {
	shift := newPos - oldTokenPos
	if m.token >= 0 {
		m.token += shift
	}
	m.pos += shift
}

// TokenPos 返回当前 token 的起始位置 在没有处于 token 中时返回 -1
// 供调用方在收到 Repair 结果后定位需要搬运的字节范围
func (m *Message) TokenPos() int { return m.token }

// Narg 返回 *<narg> 头部声明的元素个数 请求与多批量响应均适用
func (m *Message) Narg() int { return m.narg }

// Rnarg 返回还未消费的参数个数 Fragment 提示返回时它就是仍留在缓冲区里的
// key 个数 调用方据此知道还要 Refragment 多少轮
func (m *Message) Rnarg() int { return m.rnarg }

// Span 返回 Ok 结果中整条消息在"当前缓冲块"里的 [start,pos) 范围 仅在消息
// 从未触发过 Repair (因而自始至终都只活在一个缓冲块里) 时才是完整的 跨块的
// 消息请改用 Bytes 通过 Chain 重新拼出完整字节
func (m *Message) Span() (int, int) { return m.start, m.pos }

// Bytes 通过 chain 把整条消息的字节按 wire 顺序拼出来 即便它在解析过程中
// 因为 Repair 被搬过不止一个缓冲块 start 所在的块 (startBuf) 到当前块
// (curBufIdx) 之间的每一块都会被拼接进来
func (m *Message) Bytes(chain *mbuf.Chain) []byte {
	return chain.Collect(m.startBuf, m.start, m.curBufIdx, m.pos)
}

// KeyBytes 返回被捕获的 key 的字节 key 的内容从来不会跨块: 一旦它的 token
// 因为 Repair 被搬到新块 搬运发生在它收尾之前 所以 KeyStart/KeyEnd 落定时
// 两者必然同在 keyBuf 这一个块里
func (m *Message) KeyBytes(chain *mbuf.Chain) []byte {
	return chain.Collect(m.keyBuf, m.KeyStart, m.keyBuf, m.KeyEnd)
}

// Drain 在一条消息解析完毕 (Ok/Error) 之后调用 (Fragment 之后不能调用: 它会
// Reset m 使随后的 Refragment 无从继续) 把链上已经完全消费
// 的缓冲块归还给池 只留下当前正在使用的那一个 再把其中尚未读取的尾部数据
// 搬到起始处 为下一条消息腾出空间 返回值是调用方应当继续读写的缓冲块
//
// 调用之后 m 已经被 Reset 可以立即用来解析下一条消息
func Drain(chain *mbuf.Chain, m *Message) *mbuf.Mbuf {
	if chain.Len() > 1 {
		chain.DropFront(chain.Len() - 1)
	}
	cur := chain.Last()
	cur.Compact(m.pos)
	m.Reset()
	return cur
}
