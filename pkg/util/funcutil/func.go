// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package funcutil

import (
	"context"
	"strings"
)

// CheckCtxValid 判断 ctx 是否仍然可用（未取消、未超时）。
func CheckCtxValid(ctx context.Context) bool {
	return ctx.Err() == nil
}

// TrimScheme 去掉地址中的 scheme 部分，用于日志中缩短页面地址。
func TrimScheme(address string) string {
	if idx := strings.Index(address, "://"); idx >= 0 {
		return address[idx+3:]
	}
	return address
}
