package pool

import "errors"

var (
	// ErrPoolClosed 池已释放，不再接受任务。
	ErrPoolClosed = errors.New("pool closed")

	// ErrInvalidPoolConfig 容量等配置非法。
	ErrInvalidPoolConfig = errors.New("invalid pool config")

	// ErrPoolOverload 非阻塞模式下没有空闲 worker。
	ErrPoolOverload = errors.New("pool overloaded")
)
