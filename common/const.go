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

package common

const (
	// App 应用程序名称 也用作指标的 namespace 前缀 (不能包含 '-')
	App = "twemproxy"

	// Version 应用程序版本
	Version = "v0.0.1"

	// ReadWriteBlockSize 默认的 mbuf 缓冲块长度 与 twemproxy 的 mbuf_chunk_size 对应
	//
	// 每个客户端/后端连接的读写都以这个大小为单位申请缓冲块 取得足够大到能装下
	// 绝大多数请求 (避免频繁 Repair) 又不至于让大量空闲连接占用过多内存之间的折中
	ReadWriteBlockSize = 4096
)
