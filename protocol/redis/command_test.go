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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tt := []struct {
		name  string
		cmd   string
		want  Type
		arity Arity
	}{
		{"get", "GET", ReqGet, Arg1},
		{"get lowercase", "get", ReqGet, Arg1},
		{"get mixed case", "GeT", ReqGet, Arg1},
		{"set", "SET", ReqSet, Arg2},
		{"hset", "HSET", ReqHset, Arg3},
		{"linsert unsupported arity", "LINSERT", ReqLinsert, Arg4},
		{"sadd argn", "SADD", ReqSadd, ArgN},
		{"mget argx", "MGET", ReqMget, ArgX},
		{"del argx", "DEL", ReqDel, ArgX},
		{"sismember len9", "SISMEMBER", ReqSismember, Arg2},
		{"srandmember len11", "SRANDMEMBER", ReqSrandmember, Arg1},
		{"unknown command", "FLUSHALL", Unknown, ArgUnknown},
		{"unknown length", "X", Unknown, ArgUnknown},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got := classify([]byte(tc.cmd))
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.arity, got.Arity())
		})
	}
}

func TestTypeIsRequestIsResponse(t *testing.T) {
	assert.True(t, ReqGet.IsRequest())
	assert.False(t, ReqGet.IsResponse())
	assert.True(t, RspStatus.IsResponse())
	assert.False(t, RspStatus.IsRequest())
	assert.False(t, Unknown.IsRequest())
	assert.False(t, Unknown.IsResponse())
}
