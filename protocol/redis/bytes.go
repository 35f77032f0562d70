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

const (
	// CR 回车符 统一 RESP 协议的行结束标记的第一个字节
	CR = '\r'
	// LF 换行符 统一 RESP 协议的行结束标记的第二个字节
	LF = '\n'
)

// isDigit 判断 ch 是否为 ASCII 十进制数字
func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// toLower 折叠单个 ASCII 字母到小写 非字母字节原样返回
func toLower(ch byte) byte {
	if ch >= 'A' && ch <= 'Z' {
		return ch + ('a' - 'A')
	}
	return ch
}

// equalFoldN 对定长命令名做大小写无关比较 避免为每次比较分配内存
//
// 对应 twemproxy 中按长度分桶的 str3icmp/str4icmp/.../str11icmp 系列比较函数
func equalFoldN(b []byte, want string) bool {
	if len(b) != len(want) {
		return false
	}
	for i := 0; i < len(b); i++ {
		if toLower(b[i]) != toLower(want[i]) {
			return false
		}
	}
	return true
}
