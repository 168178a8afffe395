package internal

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

var (
	// ErrConfiguration 配置不合法，构造时返回，不会重试。
	ErrConfiguration = errors.New("配置错误")
	// ErrDecodeMismatch 键存在，但值无法转换为请求的类型。
	ErrDecodeMismatch = errors.New("值类型不匹配")
	// ErrAdminDisabled 未在连接串中开启allowAdmin时执行了管理操作。
	ErrAdminDisabled = errors.New("未开启管理操作（allowAdmin=false）")
)

type Property struct {
	// 键的命名空间。为空则不加前缀。
	Namespace string `yaml:"namespace"`
	// 连接串，格式：[scheme://][password@]host1[,host2,...][?k=v&k=v]。为空则连接localhost:6379。
	ConnectionString string `yaml:"connection-string"`
	// 命令标志位。默认：FlagNone。
	Flags CommandFlags `yaml:"flags"`
	// 幂等命令失败时的重试次数。为0则不重试。
	RetryCount int `yaml:"retry-count"`
	// 连接数量，必须大于0。
	PoolSize int `yaml:"pool-size"`
}

// CommandFlags 命令标志位
type CommandFlags int

const (
	FlagNone CommandFlags = 0
	// FlagFireAndForget 写命令（set、delete、append、expire）失败时只记录日志，不返回错误。
	FlagFireAndForget CommandFlags = 1
)

// Conn 单个Redis连接所需的命令集合。redis.UniversalClient满足该接口。
type Conn interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Append(ctx context.Context, key, value string) *redis.IntCmd
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	DecrBy(ctx context.Context, key string, decrement int64) *redis.IntCmd
	IncrByFloat(ctx context.Context, key string, value float64) *redis.FloatCmd
	GetSet(ctx context.Context, key string, value interface{}) *redis.StringCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Persist(ctx context.Context, key string) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Pipeline() redis.Pipeliner
	Close() error
}

// Dialer 按配置打开一个连接
type Dialer func(ctx context.Context, options *Options) (Conn, error)

type Client interface {
	// ListKeys 列出匹配的键（已去掉命名空间前缀）
	ListKeys(ctx context.Context, pattern string) ([]string, error)
	// CountKeys 统计指定格式的键值对数量
	CountKeys(ctx context.Context, pattern string) *KeyReport
	// ClearKeys 清除指定格式的键值对
	ClearKeys(ctx context.Context, pattern string) (*KeyReport, error)
	// Close 关闭客户端
	Close()
}
