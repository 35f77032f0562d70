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

// Type 是消息的分类 请求被归类到某个具体的 Redis 命令 响应被归类到五种 RESP 应答形式之一
type Type int

const (
	// Unknown 未分类 / 分类失败
	Unknown Type = iota

	// 请求命令 顺序对应 twemproxy 的 msg_type_t 枚举

	ReqAppend
	ReqDecr
	ReqDel
	ReqDecrby
	ReqExists
	ReqExpire
	ReqExpireat
	ReqGet
	ReqGetbit
	ReqGetrange
	ReqGetset
	ReqHdel
	ReqHexists
	ReqHget
	ReqHgetall
	ReqHincrby
	ReqHkeys
	ReqHlen
	ReqHmget
	ReqHmset
	ReqHset
	ReqHsetnx
	ReqHvals
	ReqIncr
	ReqIncrby
	ReqLindex
	ReqLinsert
	ReqLlen
	ReqLpop
	ReqLpush
	ReqLpushx
	ReqLrange
	ReqLrem
	ReqLset
	ReqLtrim
	ReqMove
	ReqPersist
	ReqRpop
	ReqRpush
	ReqRpushx
	ReqSadd
	ReqScard
	ReqSet
	ReqSetbit
	ReqSetex
	ReqSetnx
	ReqSetrange
	ReqSismember
	ReqSmembers
	ReqSpop
	ReqSrandmember
	ReqSrem
	ReqStrlen
	ReqTTL
	ReqType
	ReqMget

	// 应答类型

	RspStatus
	RspError
	RspInteger
	RspBulk
	RspMultibulk

	sentinel
)

// Arity 是命令参数的分类 决定了请求状态机在 KEY_LF 之后的走向
type Arity int

const (
	// ArgUnknown 非请求命令 或尚未分类
	ArgUnknown Arity = iota

	// Arg1 仅携带 key 本身 例如 GET key
	Arg1

	// Arg2 key 加一个参数 例如 SET key value
	Arg2

	// Arg3 key 加两个参数 例如 HSET key field value
	Arg3

	// Arg4 key 加三个参数 例如 LINSERT key BEFORE|AFTER pivot value
	//
	// twemproxy 中 LINSERT 的处理被标记为 /* FIXME */ 状态机没有 ARG3_LEN 状态
	// 这里保留同样的未完成状态: 分类为 Arg4 但请求状态机在命令名收尾处
	// (requestArity) 只认识 Arg1/Arg2/Arg3/ArgN/ArgX 因此任何 Arg4 命令都会在
	// 命令名的 LF 处落入 Error 分支
	Arg4

	// ArgN key 加一个或多个尾随参数 例如 SADD key member [member ...]
	ArgN

	// ArgX 没有 key 前缀的多 key 命令 例如 MGET key [key ...]
	ArgX
)

// IsRequest 返回 t 是否为请求命令分类
func (t Type) IsRequest() bool {
	return t > Unknown && t < RspStatus
}

// IsResponse 返回 t 是否为应答分类
func (t Type) IsResponse() bool {
	return t >= RspStatus && t < sentinel
}

// Arity 返回请求命令的参数分类 对非请求类型返回 ArgUnknown
func (t Type) Arity() Arity {
	switch t {
	case ReqGet, ReqTTL, ReqDecr, ReqHlen, ReqIncr, ReqLlen, ReqLpop, ReqRpop,
		ReqSpop, ReqType, ReqHkeys, ReqHvals, ReqScard, ReqExists, ReqStrlen,
		ReqHgetall, ReqPersist, ReqSmembers, ReqSrandmember:
		return Arg1

	case ReqSet, ReqHget, ReqMove, ReqSetnx, ReqAppend, ReqDecrby, ReqExpire,
		ReqGetbit, ReqGetset, ReqIncrby, ReqLindex, ReqLpushx, ReqRpushx,
		ReqHexists, ReqExpireat, ReqSismember:
		return Arg2

	case ReqHset, ReqLrem, ReqLset, ReqLtrim, ReqSetex, ReqHsetnx, ReqLrange,
		ReqSetbit, ReqHincrby, ReqGetrange, ReqSetrange:
		return Arg3

	case ReqLinsert:
		return Arg4

	case ReqHdel, ReqSadd, ReqSrem, ReqHmget, ReqHmset, ReqLpush, ReqRpush:
		return ArgN

	case ReqMget, ReqDel:
		return ArgX

	default:
		return ArgUnknown
	}
}

// cmdEntry 是命令表中的一条记录
type cmdEntry struct {
	name string
	typ  Type
}

// cmdTable 按命令名字节长度分桶 桶内线性比对 对应 twemproxy 按长度分支的 switch 级联
//
// 替换twemproxy 里针对每个长度手写的 str3icmp/str4icmp/.../str11icmp 级联比较:
// 先按长度做一次哈希表查找缩小范围 再对桶内候选做大小写无关的定长比较
var cmdTable = map[int][]cmdEntry{
	3: {
		{"GET", ReqGet},
		{"SET", ReqSet},
		{"TTL", ReqTTL},
		{"DEL", ReqDel},
	},
	4: {
		{"DECR", ReqDecr},
		{"HDEL", ReqHdel},
		{"HGET", ReqHget},
		{"HLEN", ReqHlen},
		{"HSET", ReqHset},
		{"INCR", ReqIncr},
		{"LLEN", ReqLlen},
		{"LPOP", ReqLpop},
		{"LREM", ReqLrem},
		{"LSET", ReqLset},
		{"MOVE", ReqMove},
		{"RPOP", ReqRpop},
		{"SADD", ReqSadd},
		{"SPOP", ReqSpop},
		{"SREM", ReqSrem},
		{"TYPE", ReqType},
		{"MGET", ReqMget},
	},
	5: {
		{"HKEYS", ReqHkeys},
		{"HMGET", ReqHmget},
		{"HMSET", ReqHmset},
		{"HVALS", ReqHvals},
		{"LPUSH", ReqLpush},
		{"LTRIM", ReqLtrim},
		{"RPUSH", ReqRpush},
		{"SCARD", ReqScard},
		{"SETEX", ReqSetex},
		{"SETNX", ReqSetnx},
	},
	6: {
		{"APPEND", ReqAppend},
		{"DECRBY", ReqDecrby},
		{"EXISTS", ReqExists},
		{"EXPIRE", ReqExpire},
		{"GETBIT", ReqGetbit},
		{"GETSET", ReqGetset},
		{"HSETNX", ReqHsetnx},
		{"INCRBY", ReqIncrby},
		{"LINDEX", ReqLindex},
		{"LPUSHX", ReqLpushx},
		{"LRANGE", ReqLrange},
		{"RPUSHX", ReqRpushx},
		{"SETBIT", ReqSetbit},
		{"STRLEN", ReqStrlen},
	},
	7: {
		{"HEXISTS", ReqHexists},
		{"HGETALL", ReqHgetall},
		{"HINCRBY", ReqHincrby},
		{"LINSERT", ReqLinsert},
		{"PERSIST", ReqPersist},
	},
	8: {
		{"EXPIREAT", ReqExpireat},
		{"GETRANGE", ReqGetrange},
		{"SETRANGE", ReqSetrange},
		{"SMEMBERS", ReqSmembers},
	},
	9: {
		{"SISMEMBER", ReqSismember},
	},
	11: {
		{"SRANDMEMBER", ReqSrandmember},
	},
}

// classify 把 rlen 字节长度的命令名归类为一个 Type 未命中返回 Unknown
//
// 大小写无关 不分配内存
func classify(name []byte) Type {
	entries, ok := cmdTable[len(name)]
	if !ok {
		return Unknown
	}
	for _, e := range entries {
		if equalFoldN(name, e.name) {
			return e.typ
		}
	}
	return Unknown
}
