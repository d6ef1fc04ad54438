package session

import (
	"time"

	"go.uber.org/atomic"
)

var lastHandle atomic.Int64

// NextHandle 返回一个进程内唯一的句柄。
//
// 句柄取当前毫秒时间戳，与上一次分配的值冲突时顺延，客户端与设备共用同一序列，
// 因此 close 请求中的句柄只会指向其中一种。
func NextHandle() int64 {
	for {
		last := lastHandle.Load()
		next := max(time.Now().UnixMilli(), last+1)
		if lastHandle.CompareAndSwap(last, next) {
			return next
		}
	}
}
