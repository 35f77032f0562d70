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
	"time"

	"github.com/zhaojp0411/twemproxy/common"
	"github.com/zhaojp0411/twemproxy/confengine"
	"github.com/zhaojp0411/twemproxy/logger"
	"github.com/zhaojp0411/twemproxy/router"
)

// ShardConfig names one backend Redis instance a shard's keys are routed to.
type ShardConfig struct {
	Name string `config:"name"`
	Addr string `config:"addr"`
}

// AdminConfig controls the admin HTTP surface (metrics, health, pprof).
type AdminConfig struct {
	Enabled bool          `config:"enabled"`
	Address string        `config:"address"`
	Pprof   bool          `config:"pprof"`
	Timeout time.Duration `config:"timeout"`
}

// Config is the top-level schema for a proxy instance, unpacked from the
// YAML file's "proxy" section via confengine.
type Config struct {
	Listen string        `config:"listen"`
	Shards []ShardConfig `config:"shards"`

	DialTimeout  time.Duration `config:"dialTimeout"`
	ReadTimeout  time.Duration `config:"readTimeout"`
	WriteTimeout time.Duration `config:"writeTimeout"`

	// ShardFailTTL is how long a shard that just failed to dial or round-trip
	// is remembered as down, so a burst of client requests doesn't pile up
	// retrying a backend that's still unreachable.
	ShardFailTTL time.Duration `config:"shardFailTTL"`

	// QueueMaxAge is the round-trip time (counted in whole seconds) at or
	// above which a backend round trip, single or fragment leg, is logged as
	// slow. The round trip itself is not aborted.
	QueueMaxAge time.Duration `config:"queueMaxAge"`

	Admin  AdminConfig    `config:"admin"`
	Logger logger.Options `config:"logger"`

	// Options 是自由形式的调优参数 不值得为每个冷门开关都开一个顶层字段
	Options common.Options `config:"options"`
}

// maxClients 返回同时服务的客户端连接数上限 未配置时按核数推导
func (c *Config) maxClients() int {
	n, err := c.Options.GetInt("maxClients")
	if err != nil || n <= 0 {
		return common.Concurrency() * 512
	}
	return n
}

// readBlockSize 返回每个连接读缓冲块的大小
func (c *Config) readBlockSize() int {
	n, err := c.Options.GetInt("readBlockSize")
	if err != nil || n <= 0 {
		return common.ReadWriteBlockSize
	}
	return n
}

// LoadConfig unpacks the "proxy" section of conf, applying defaults for any
// timeout left unset. Callers that need the logger options before the proxy
// itself is constructed (cmd/proxy.go does, to configure logging before
// anything else runs) call this directly instead of going through New.
func LoadConfig(conf *confengine.Config) (Config, error) {
	var cfg Config
	if err := conf.UnpackChild("proxy", &cfg); err != nil {
		return Config{}, err
	}
	return cfg.withDefaults(), nil
}

func (c *Config) shards() []router.Shard {
	out := make([]router.Shard, len(c.Shards))
	for i, s := range c.Shards {
		out[i] = router.Shard{Name: s.Name, Addr: s.Addr}
	}
	return out
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 500 * time.Millisecond
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.ShardFailTTL <= 0 {
		out.ShardFailTTL = 3 * time.Second
	}
	if out.QueueMaxAge <= 0 {
		out.QueueMaxAge = 5 * time.Second
	}
	return out
}
