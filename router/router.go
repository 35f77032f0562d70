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

// Package router 按 key 把请求路由到某一个后端分片
//
// 使用不带权重的 rendezvous (HRW) 哈希而不是传统一致性哈希环: 增删分片时
// 只有涉及到的那部分 key 会被重新分配 不需要维护环上的虚拟节点
package router

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// Shard 是一个后端分片的寻址信息
type Shard struct {
	Name string // 配置文件里的分片名 例如 "shard-0"
	Addr string // 后端 Redis 实例地址 "host:port"
}

// Router 把 key 映射到 Shard 的名字
type Router struct {
	shards []Shard
	byName map[string]Shard
	rend   *rendezvous.Rendezvous
}

func hashKey(s string) uint64 {
	return xxhash.Sum64String(s)
}

// New 用给定的分片集合构建一个 Router 分片顺序不影响路由结果
func New(shards []Shard) *Router {
	names := make([]string, len(shards))
	byName := make(map[string]Shard, len(shards))
	for i, s := range shards {
		names[i] = s.Name
		byName[s.Name] = s
	}

	return &Router{
		shards: shards,
		byName: byName,
		rend:   rendezvous.New(names, hashKey),
	}
}

// Route 返回 key 应当被转发到的分片 在没有任何分片时返回零值和 false
func (r *Router) Route(key []byte) (Shard, bool) {
	if len(r.shards) == 0 {
		return Shard{}, false
	}
	name := r.rend.Lookup(string(key))
	s, ok := r.byName[name]
	return s, ok
}

// Shards 返回当前已注册的分片集合的一个副本
func (r *Router) Shards() []Shard {
	out := make([]Shard, len(r.shards))
	copy(out, r.shards)
	return out
}

// Add 把一个新分片加入路由表 只有落在这个新分片上的 key 会受到影响
func (r *Router) Add(s Shard) {
	if _, ok := r.byName[s.Name]; ok {
		return
	}
	r.shards = append(r.shards, s)
	r.byName[s.Name] = s
	r.rend.Add(s.Name)
}

// Remove 把一个分片从路由表移除 原本落在该分片上的 key 会被重新分配到其它分片
func (r *Router) Remove(name string) {
	if _, ok := r.byName[name]; !ok {
		return
	}
	delete(r.byName, name)
	for i, s := range r.shards {
		if s.Name == name {
			r.shards = append(r.shards[:i], r.shards[i+1:]...)
			break
		}
	}
	names := make([]string, len(r.shards))
	for i, s := range r.shards {
		names[i] = s.Name
	}
	r.rend = rendezvous.New(names, hashKey)
}
