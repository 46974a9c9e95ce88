package gnssflash

import "time"

// Start captures the current instant. The returned value carries Go's
// monotonic clock reading, so wall clock adjustments do not move deadlines.
func Start() time.Time {
	return time.Now()
}

/*
 * @Description: 判断是否仍在超时时间内
 * @param start 起始时间
 * @param timeoutMs 超时毫秒数
 * @return bool true:未超时 false:已超时
 */
func NotExpired(start time.Time, timeoutMs uint32) bool {
	return time.Since(start) < time.Duration(timeoutMs)*time.Millisecond
}
