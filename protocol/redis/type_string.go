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

var typeNames = map[Type]string{
	ReqAppend: "APPEND", ReqDecr: "DECR", ReqDel: "DEL", ReqDecrby: "DECRBY",
	ReqExists: "EXISTS", ReqExpire: "EXPIRE", ReqExpireat: "EXPIREAT", ReqGet: "GET",
	ReqGetbit: "GETBIT", ReqGetrange: "GETRANGE", ReqGetset: "GETSET", ReqHdel: "HDEL",
	ReqHexists: "HEXISTS", ReqHget: "HGET", ReqHgetall: "HGETALL", ReqHincrby: "HINCRBY",
	ReqHkeys: "HKEYS", ReqHlen: "HLEN", ReqHmget: "HMGET", ReqHmset: "HMSET",
	ReqHset: "HSET", ReqHsetnx: "HSETNX", ReqHvals: "HVALS", ReqIncr: "INCR",
	ReqIncrby: "INCRBY", ReqLindex: "LINDEX", ReqLinsert: "LINSERT", ReqLlen: "LLEN",
	ReqLpop: "LPOP", ReqLpush: "LPUSH", ReqLpushx: "LPUSHX", ReqLrange: "LRANGE",
	ReqLrem: "LREM", ReqLset: "LSET", ReqLtrim: "LTRIM", ReqMove: "MOVE",
	ReqPersist: "PERSIST", ReqRpop: "RPOP", ReqRpush: "RPUSH", ReqRpushx: "RPUSHX",
	ReqSadd: "SADD", ReqScard: "SCARD", ReqSet: "SET", ReqSetbit: "SETBIT",
	ReqSetex: "SETEX", ReqSetnx: "SETNX", ReqSetrange: "SETRANGE", ReqSismember: "SISMEMBER",
	ReqSmembers: "SMEMBERS", ReqSpop: "SPOP", ReqSrandmember: "SRANDMEMBER", ReqSrem: "SREM",
	ReqStrlen: "STRLEN", ReqTTL: "TTL", ReqType: "TYPE", ReqMget: "MGET",
	RspStatus: "STATUS", RspError: "ERROR", RspInteger: "INTEGER",
	RspBulk: "BULK", RspMultibulk: "MULTIBULK",
}

// String renders t as the upper-case command/reply name used in metrics
// labels and log lines. Unknown yields "UNKNOWN".
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}
