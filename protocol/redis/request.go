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
	"github.com/pkg/errors"

	"github.com/zhaojp0411/twemproxy/mbuf"
)

// 请求状态机状态 直接对应 twemproxy parse_request 里的状态 只是把针对每种
// 参数个数 (ARG1/ARG2/ARG3/ARGN) 各自铺开的状态折叠成一个通用的"读一个
// bulk string"循环 循环次数由 rnarg 字段驱动 因为无论 key 还是尾随参数
// 在协议层面都是同一种 $<len>\r\n<bytes>\r\n token 观察到的字节消费顺序
// 与 twemproxy 完全一致
const (
	swReqStart = iota
	swReqNarg
	swReqNargLF
	swReqTypeDollar
	swReqTypeLen
	swReqTypeLenLF
	swReqType
	swReqTypeLF
	swReqBulkDollar
	swReqBulkLen
	swReqBulkLenLF
	swReqBulk
	swReqBulkSkip
	swReqBulkLF
	swReqFragment
)

// ParseRequest 在 buf 上增量推进请求解析状态机 m 必须是 NewRequest 创建的
// 或者是上一次调用返回 Again/Repair/Fragment 之后原样传入的同一个 m
//
// 返回 Ok 时 调用方可以通过 m.Type/m.KeyStart/m.KeyEnd/m.Span() 取出解析结果
// 然后调用 m.Reset() 复用 m 解析下一条消息 返回 Again 时调用方应当向同一个
// buf 继续写入更多字节后重新调用 返回 Repair 时调用方应当用 m.TokenPos() 把
// 尚未读完的 token 搬到新 mbuf 上 对新 mbuf 调用 m.Rebase 再继续调用
//
// 返回 Fragment 时这是一个多 key 命令 (MGET/DEL) 且第一个 key 刚刚收尾:
// KeyStart/KeyEnd 圈出它 Rnarg() 个参数还留在缓冲区里未消费 pos 停在下一个
// 参数的 '$' 上 调用方取走这个 key 之后用 Refragment 把 m 改造成下一条合成
// 单 key 请求再重新进入 如此往复 最后一个 key 以 Ok 收尾 对应 twemproxy 里
// SW_KEY_LF -> SW_FRAGMENT 的出口协议: 逐个 key 往返解析器 从不要求整条多
// key 消息完整进入缓冲区
func ParseRequest(m *Message, buf *mbuf.Mbuf) Result {
	m.trackBuf(buf)
	p := m.pos
	last := buf.Last()

	for p < last {
		ch := buf.At(p)

		switch m.state {
		case swReqStart:
			m.start = p
			m.startBuf = m.curBufIdx
			m.narg = 0
			m.token = -1
			if ch != '*' {
				return reqError(m, p, "request does not start with '*'")
			}
			m.state = swReqNarg
			p++

		case swReqNarg:
			if m.token < 0 {
				m.token = p
			}
			switch {
			case isDigit(ch):
				m.narg = m.narg*10 + int(ch-'0')
				p++
			case ch == CR:
				if p == m.token {
					return reqError(m, p, "missing narg digits")
				}
				m.token = -1
				m.state = swReqNargLF
				p++
			default:
				return reqError(m, p, "invalid byte in narg")
			}

		case swReqNargLF:
			if ch != LF {
				return reqError(m, p, "expected LF after narg")
			}
			if m.narg < 1 {
				return reqError(m, p, "narg must be at least 1")
			}
			m.rnarg = m.narg
			m.state = swReqTypeDollar
			p++

		case swReqTypeDollar:
			if ch != '$' {
				return reqError(m, p, "expected '$' before command name length")
			}
			m.rlen = 0
			m.state = swReqTypeLen
			p++

		case swReqTypeLen:
			if m.token < 0 {
				m.token = p
			}
			switch {
			case isDigit(ch):
				m.rlen = m.rlen*10 + int(ch-'0')
				p++
			case ch == CR:
				if p-m.token == 0 {
					return reqError(m, p, "missing command name length digits")
				}
				if m.rlen == 0 || m.rnarg == 0 {
					return reqError(m, p, "empty command name")
				}
				m.rnarg--
				m.token = -1
				m.state = swReqTypeLenLF
				p++
			default:
				return reqError(m, p, "invalid byte in command name length")
			}

		case swReqTypeLenLF:
			if ch != LF {
				return reqError(m, p, "expected LF after command name length")
			}
			m.token = p + 1
			m.state = swReqType
			p++

		case swReqType:
			if p-m.token < m.rlen {
				p++
				continue
			}
			if ch != CR {
				return reqError(m, p, "expected CR after command name")
			}
			m.Type = classify(buf.Slice(m.token, p))
			m.token = -1
			m.state = swReqTypeLF
			p++

		case swReqTypeLF:
			if ch != LF {
				return reqError(m, p, "expected LF after command name")
			}
			if r, ok := requestArity(m); !ok {
				return r
			}
			m.state = swReqBulkDollar
			m.keysSeen = 0
			p++

		case swReqBulkDollar:
			if ch != '$' {
				return reqError(m, p, "expected '$' before argument length")
			}
			m.rlen = 0
			m.state = swReqBulkLen
			p++

		case swReqBulkLen:
			if m.token < 0 {
				m.token = p
			}
			switch {
			case isDigit(ch):
				m.rlen = m.rlen*10 + int(ch-'0')
				p++
			case ch == CR:
				if p-m.token == 0 {
					return reqError(m, p, "missing argument length digits")
				}
				// key 不允许为空 普通尾随参数可以是 $0
				if m.rlen == 0 && (m.keysSeen == 0 || m.Type.Arity() == ArgX) {
					return reqError(m, p, "empty key")
				}
				if m.rnarg == 0 {
					return reqError(m, p, "more arguments than declared")
				}
				m.rnarg--
				m.token = -1
				m.state = swReqBulkLenLF
				p++
			default:
				return reqError(m, p, "invalid byte in argument length")
			}

		case swReqBulkLenLF:
			if ch != LF {
				return reqError(m, p, "expected LF after argument length")
			}
			p++
			// 只有"内容有意义"的 bulk string (key) 才按 token 处理 跨块时靠
			// Repair 搬运 其余尾随参数的内容永远不会被上层用到 一律靠 rlen
			// 倒数跳过 即便体积超过一个 mbuf 也只需要反复返回 Again 不需要
			// 任何搬运 对应 twemproxy 里 SW_ARG1/SW_ARG2/SW_ARGN 从不设置 token
			if m.Type.Arity() == ArgX || m.keysSeen == 0 {
				m.token = p
				m.state = swReqBulk
			} else {
				m.state = swReqBulkSkip
			}

		case swReqBulk:
			if p-m.token < m.rlen {
				p++
				continue
			}
			if ch != CR {
				return reqError(m, p, "expected CR after argument")
			}
			m.KeyStart, m.KeyEnd = m.token, p
			m.keyBuf = m.curBufIdx
			m.keysSeen++
			m.token = -1
			m.state = swReqBulkLF
			p++

		case swReqBulkSkip:
			if m.rlen > 0 {
				m.rlen--
				p++
				continue
			}
			if ch != CR {
				return reqError(m, p, "expected CR after argument")
			}
			m.keysSeen++
			m.state = swReqBulkLF
			p++

		case swReqBulkLF:
			if ch != LF {
				return reqError(m, p, "expected LF after argument")
			}
			p++
			if m.rnarg == 0 {
				// 最后一个参数收尾 单 key 的 MGET/DEL 也从这里走 Ok: 拆分成
				// 一条子请求等于不拆 直接按普通单 key 请求转发即可
				return finishRequest(m, p)
			}
			if m.Type.Arity() == ArgX {
				m.state = swReqFragment
			} else {
				m.state = swReqBulkDollar
			}

		case swReqFragment:
			// 下一个参数的首字节已经到达 把 pos 钉在这里返回 Fragment 剩下的
			// rnarg 个参数原封不动留在缓冲区里 调用方取走 KeyStart/KeyEnd 圈出
			// 的 key 后用 Refragment 重新进入 消费下一个参数
			return finishFragment(m, p)

		default:
			return reqError(m, p, "unreachable request state")
		}
	}

	m.pos = p
	if buf.Full() && m.token >= 0 {
		return Repair
	}
	return Again
}

// requestArity 校验剩余参数个数与命令分类是否吻合 此时命令名的长度头已经
// 消费 rnarg == narg-1 对应 twemproxy 里 SW_KEY_LF 按 r->type 分流并核对
// rnarg 的那段逻辑 只是提前到了命令名收尾处 观察到的失败输入一致
func requestArity(m *Message) (Result, bool) {
	switch m.Type.Arity() {
	case Arg1:
		if m.rnarg != 1 {
			return reqError(m, m.pos, "wrong argument count for Arg1 command"), false
		}
	case Arg2:
		if m.rnarg != 2 {
			return reqError(m, m.pos, "wrong argument count for Arg2 command"), false
		}
	case Arg3:
		if m.rnarg != 3 {
			return reqError(m, m.pos, "wrong argument count for Arg3 command"), false
		}
	case ArgN:
		if m.rnarg < 2 {
			return reqError(m, m.pos, "wrong argument count for ArgN command"), false
		}
	case ArgX:
		if m.rnarg < 1 {
			return reqError(m, m.pos, "wrong argument count for ArgX command"), false
		}
	default:
		// 未分类命令 (Unknown) 以及明确标记为未实现的 Arg4 (LINSERT) 一律失败
		return reqError(m, m.pos, "unsupported or unknown command"), false
	}
	return Ok, true
}

// Refragment 把一条停在 Fragment 提示上的消息改造成下一条合成单 key 请求:
// 下一次 ParseRequest 会从 pos 所在的 "$<len>\r\n<key>\r\n" 继续 消费一个
// 参数后再次给出 Fragment (还有更多参数) 或 Ok (这是最后一个) 对应 twemproxy
// 的 fragmenter 为每个剩余参数构造新消息并重新进入解析器的做法
func (m *Message) Refragment() {
	m.state = swReqBulkDollar
	m.start = m.pos
	m.startBuf = m.curBufIdx
}

func finishRequest(m *Message, pos int) Result {
	m.pos = pos
	return Ok
}

func finishFragment(m *Message, pos int) Result {
	m.pos = pos
	return Fragment
}

func reqError(m *Message, pos int, reason string) Result {
	m.pos = pos + 1
	m.Err = errors.New(reason)
	return Error
}
