// Package cache 提供进程内缓存，作为远端缓存不可用时的兜底层。
package cache

// Cache 进程内键值缓存。
type Cache[K comparable, V any] interface {
	Set(key K, value V)
	// Get 未命中或已过期时返回零值与 false。
	Get(key K) (V, bool)
	Del(key K)
	Contains(key K) bool
	Len() int
	Clear()
	// Purge 清理已过期条目并返回清理数量。
	Purge() int
}
