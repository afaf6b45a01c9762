package repository

import "context"

// KVStore 设备本地的键值存储（对应移动端 AsyncStorage）。
// MultiSet / MultiRemove 必须原子：读者要么看到全部写入，要么一个都看不到。
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	MultiSet(ctx context.Context, pairs map[string]string) error
	MultiRemove(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}
