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

// 响应状态机状态 对应 twemproxy parse_response 里的状态 SW_STATUS/SW_ERROR/
// SW_INTEGER 在 twemproxy 里各自把指针回退一个字节后落入共享的 SW_RUNTO_CRLF
// 这里用字节偏移量模型表达同样的效果: 行内容从类型前缀的下一个字节开始
// 直接由 swRspLine 消费 (不设置 token) 不需要任何"回退"
const (
	swRspStart = iota
	swRspLine // +status / -error / :integer 的内容 直到 CR
	swRspLineLF
	swRspBulkLen // $ 后面的长度数字 (可以是负数 表示 null bulk)
	swRspBulkLenLF
	swRspBulkArg
	swRspBulkArgLF
	swRspMultibulkNarg // * 后面的元素个数 (可以是负数 表示 null array)
	swRspMultibulkNargLF
	swRspElemDollar
	swRspElemLen
	swRspElemLenLF
	swRspElemArg
	swRspElemArgLF
)

// ParseResponse 在 buf 上增量推进响应解析状态机 语义和 ParseRequest 对称
// 只识别五种 RESP 应答形式 且多批量应答 (multibulk) 只支持元素全部为 bulk
// string 的情形 这正是一个分片代理在扇入 MGET 这类命令的子应答时会看到的
// 唯一形状
func ParseResponse(m *Message, buf *mbuf.Mbuf) Result {
	m.trackBuf(buf)
	p := m.pos
	last := buf.Last()

	for p < last {
		ch := buf.At(p)

		switch m.state {
		case swRspStart:
			m.start = p
			m.startBuf = m.curBufIdx
			m.rlen = 0
			m.narg = 0
			switch ch {
			case '+':
				m.Type = RspStatus
				m.state = swRspLine
			case '-':
				m.Type = RspError
				m.state = swRspLine
			case ':':
				m.Type = RspInteger
				m.state = swRspLine
			case '$':
				m.Type = RspBulk
				m.state = swRspBulkLen
			case '*':
				m.Type = RspMultibulk
				m.state = swRspMultibulkNarg
			default:
				return rspError(m, p, "unrecognized response type byte")
			}
			p++

		case swRspLine:
			// 行内容不按 token 处理 (对应 twemproxy 的 SW_RUNTO_CRLF): 任意长的
			// status/error/integer 行都能靠干净换块流过去 不需要 Repair 搬运
			if ch == CR {
				m.state = swRspLineLF
			}
			p++

		case swRspLineLF:
			if ch != LF {
				return rspError(m, p, "expected LF after status/error/integer line")
			}
			return finishResponse(m, p+1)

		case swRspBulkLen:
			if r, ok := readSignedDigits(m, buf, &p, swRspBulkLenLF); !ok {
				return r
			}

		case swRspBulkLenLF:
			if ch != LF {
				return rspError(m, p, "expected LF after bulk length")
			}
			p++
			if m.rlen < 0 {
				return finishResponse(m, p) // $-1\r\n, null bulk
			}
			m.state = swRspBulkArg

		case swRspBulkArg:
			// bulk 的内容对 framing 本身没有意义 而且可以任意大 因此不设置
			// token: 靠 rlen 逐字节倒数 跨块时只需要反复返回 Again 不需要
			// 任何搬运 对应 twemproxy SW_BULK_ARG 从不设置 token 只做
			// rlen -= (b->last - p) 式的跳过
			if m.rlen > 0 {
				m.rlen--
				p++
				continue
			}
			if ch != CR {
				return rspError(m, p, "expected CR after bulk payload")
			}
			m.state = swRspBulkArgLF
			p++

		case swRspBulkArgLF:
			if ch != LF {
				return rspError(m, p, "expected LF after bulk payload")
			}
			return finishResponse(m, p+1)

		case swRspMultibulkNarg:
			if r, ok := readSignedDigits(m, buf, &p, swRspMultibulkNargLF); !ok {
				return r
			}

		case swRspMultibulkNargLF:
			if ch != LF {
				return rspError(m, p, "expected LF after multibulk count")
			}
			p++
			if m.narg <= 0 {
				return finishResponse(m, p) // *-1\r\n (null) or *0\r\n (empty)
			}
			m.rnarg = m.narg
			m.state = swRspElemDollar

		case swRspElemDollar:
			if ch != '$' {
				return rspError(m, p, "expected '$' before multibulk element length")
			}
			m.rlen = 0
			m.state = swRspElemLen
			p++

		case swRspElemLen:
			if r, ok := readSignedDigits(m, buf, &p, swRspElemLenLF); !ok {
				return r
			}

		case swRspElemLenLF:
			if ch != LF {
				return rspError(m, p, "expected LF after multibulk element length")
			}
			p++
			if m.rlen < 0 {
				if r, done := multibulkElemDone(m, p); done {
					return r
				}
				continue
			}
			m.state = swRspElemArg

		case swRspElemArg:
			// 和 swRspBulkArg 一样: 元素内容任意大且不被调用方依赖 不设置
			// token 只靠 rlen 倒数
			if m.rlen > 0 {
				m.rlen--
				p++
				continue
			}
			if ch != CR {
				return rspError(m, p, "expected CR after multibulk element payload")
			}
			m.state = swRspElemArgLF
			p++

		case swRspElemArgLF:
			if ch != LF {
				return rspError(m, p, "expected LF after multibulk element payload")
			}
			p++
			if r, done := multibulkElemDone(m, p); done {
				return r
			}

		default:
			return rspError(m, p, "unreachable response state")
		}
	}

	m.pos = p
	if buf.Full() && m.token >= 0 {
		return Repair
	}
	return Again
}

// multibulkElemDone 记录一个 multibulk 元素解析完毕 rnarg 归零时整条响应完成
// 否则回到读取下一个元素的状态 返回的 bool 表示调用方应当立即返回 (true)
// 还是继续状态机循环 (false)
func multibulkElemDone(m *Message, pos int) (Result, bool) {
	m.rnarg--
	if m.rnarg == 0 {
		return finishResponse(m, pos), true
	}
	m.state = swRspElemDollar
	return Again, false
}

// readSignedDigits 读取一个可选带负号的十进制数字 token 写入 m.rlen/m.narg
// (两者复用同一段累加逻辑 取决于调用者当前解析的是长度还是元素计数)
// 遇到 CR 结束 token 切换到 next 状态 返回 (_, false) 表示调用方应当立即返回
func readSignedDigits(m *Message, buf *mbuf.Mbuf, p *int, next int) (Result, bool) {
	ch := buf.At(*p)
	if m.token < 0 {
		m.token = *p
		m.neg = false
	}
	switch {
	case ch == '-':
		// twemproxy 里 (nc_parse.c SW_MULTIBULK_ARGN_LEN) 数字 token 里出现的
		// '-' 本身是一个空操作 不管出现在哪个位置都不会报错 也不参与数值
		// 累加: 真正承担"这是不是负数/null"信号的是下面 CR 处的 m.neg 标记
		// 只在它出现在 token 的第一个字节时才会被置位 出现在中间的一个
		// 杂散 '-' (例如 "$1-2") 会被原样忽略而不是拒绝
		if *p == m.token {
			m.neg = true
		}
		*p++
		return Ok, true
	case isDigit(ch):
		v := m.rlen
		if m.state == swRspMultibulkNarg {
			v = m.narg
		}
		v = v*10 + int(ch-'0')
		if m.state == swRspMultibulkNarg {
			m.narg = v
		} else {
			m.rlen = v
		}
		*p++
		return Ok, true
	case ch == CR:
		if *p-m.token == 0 || (m.neg && *p-m.token == 1) {
			return rspError(m, *p, "missing digits"), false
		}
		if m.neg {
			if m.state == swRspMultibulkNarg {
				m.narg = -m.narg
			} else {
				m.rlen = -m.rlen
			}
		}
		m.token = -1
		m.state = next
		*p++
		return Ok, true
	default:
		return rspError(m, *p, "invalid digit byte"), false
	}
}

func finishResponse(m *Message, pos int) Result {
	m.pos = pos
	return Ok
}

func rspError(m *Message, pos int, reason string) Result {
	m.pos = pos + 1
	m.Err = errors.New(reason)
	return Error
}
