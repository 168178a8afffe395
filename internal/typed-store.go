package internal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Chngzhen/log4g"
)

// Store 带命名空间、连接轮询和重试的类型化访问入口。可被多个goroutine共享。
//
// 重试分类：get、set、delete、TTL读写按RetryCount重试；
// append、自增、自减、getset、键扫描只执行一次，失败直接返回。
type Store struct {
	namespace string
	options   *Options
	flags     CommandFlags
	retries   int
	pool      *Pool
	retry     *RetryExecutor
}

func NewStore(ctx context.Context, properties *Property) (*Store, error) {
	return newStore(ctx, properties, DialUniversal)
}

// NewStoreWithHost 单节点的便捷形式，等价于连接串 password@host:port?defaultdatabase=db
func NewStoreWithHost(ctx context.Context, namespace, host string, port int, password string, database int,
	flags CommandFlags, retryCount, poolSize int) (*Store, error) {
	return NewStore(ctx, &Property{
		Namespace:        namespace,
		ConnectionString: BuildConnectionString(host, port, password, database),
		Flags:            flags,
		RetryCount:       retryCount,
		PoolSize:         poolSize,
	})
}

func newStore(ctx context.Context, properties *Property, dial Dialer) (*Store, error) {
	if properties == nil {
		return nil, fmt.Errorf("%w: 未提供配置", ErrConfiguration)
	}
	if properties.RetryCount < 0 {
		return nil, fmt.Errorf("%w: 重试次数不能小于0，当前：%d", ErrConfiguration, properties.RetryCount)
	}

	options := ParseConnectionString(properties.ConnectionString)
	pool, err := OpenPool(ctx, options, properties.PoolSize, dial)
	if err != nil {
		return nil, err
	}
	return &Store{
		namespace: properties.Namespace,
		options:   options,
		flags:     properties.Flags,
		retries:   properties.RetryCount,
		pool:      pool,
		retry:     NewRetryExecutor(),
	}, nil
}

func (t *Store) Namespace() string {
	return t.namespace
}

func (t *Store) Options() *Options {
	return t.options
}

func (t *Store) Close() {
	t.pool.Close()
}

// exec 对命名空间后的键执行命令。每次尝试都从连接池取下一个连接。
func (t *Store) exec(ctx context.Context, command string, attempts int, work func(conn Conn) error) error {
	err := t.retry.Do(ctx, command, attempts, func() error {
		return work(t.pool.Acquire())
	})
	observe(command, err)
	return err
}

// write 写命令。FlagFireAndForget时失败只记录日志。
func (t *Store) write(ctx context.Context, command string, attempts int, work func(conn Conn) error) error {
	err := t.exec(ctx, command, attempts, work)
	if err != nil && t.flags&FlagFireAndForget != 0 {
		log4g.Error("命令[%s]执行失败（已忽略）：%+v", command, err)
		return nil
	}
	return err
}

func (t *Store) getNative(ctx context.Context, key string) (NativeValue, error) {
	var value NativeValue
	err := t.exec(ctx, "get", t.retries, func(conn Conn) error {
		var err error
		value, err = nativeOf(conn.Get(ctx, NamespacedKey(t.namespace, key)))
		return err
	})
	return value, err
}

// Get 读取键值。键不存在返回(零值, false, nil)。
func Get[T Scalar](ctx context.Context, s *Store, key string) (T, bool, error) {
	value, err := s.getNative(ctx, key)
	if err != nil {
		var zero T
		return zero, false, err
	}
	return Decode[T](value)
}

// GetNullable 读取键值，键不存在返回nil
func GetNullable[T Scalar](ctx context.Context, s *Store, key string) (*T, error) {
	value, ok, err := Get[T](ctx, s, key)
	if err != nil || !ok {
		return nil, err
	}
	return &value, nil
}

// Set 写入键值。ttl小于等于0表示不过期。
func Set[T Scalar](ctx context.Context, s *Store, key string, value T, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	raw := Encode(value)
	return s.write(ctx, "set", s.retries, func(conn Conn) error {
		return conn.Set(ctx, NamespacedKey(s.namespace, key), raw, ttl).Err()
	})
}

// SetNullable 写入键值。value为nil时删除键，Redis中不保存空值。
func SetNullable[T Scalar](ctx context.Context, s *Store, key string, value *T, ttl time.Duration) error {
	if value == nil {
		_, err := s.Delete(ctx, key)
		return err
	}
	return Set(ctx, s, key, *value, ttl)
}

// Delete 删除一个或多个键，返回实际删除的数量
func (t *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var deleted int64
	err := t.write(ctx, "del", t.retries, func(conn Conn) error {
		var err error
		deleted, err = conn.Del(ctx, namespacedKeys(t.namespace, keys)...).Result()
		return err
	})
	return deleted, err
}

// SetOrAppend 追加文本，键不存在时等同于写入。返回追加后的长度。不重试。
func (t *Store) SetOrAppend(ctx context.Context, key, text string) (int64, error) {
	var length int64
	err := t.write(ctx, "append", NoRetry, func(conn Conn) error {
		var err error
		length, err = conn.Append(ctx, NamespacedKey(t.namespace, key), text).Result()
		return err
	})
	return length, err
}

// Increment 自增并返回新值。不重试，避免重复累加。
func Increment[T Number](ctx context.Context, s *Store, key string, delta T) (T, error) {
	return incrBy(ctx, s, "incr", key, delta, false)
}

// Decrement 自减并返回新值。不重试，避免重复累减。
func Decrement[T Number](ctx context.Context, s *Store, key string, delta T) (T, error) {
	return incrBy(ctx, s, "decr", key, delta, true)
}

func incrBy[T Number](ctx context.Context, s *Store, command, key string, delta T, negative bool) (T, error) {
	var result T
	namespaced := NamespacedKey(s.namespace, key)
	err := s.exec(ctx, command, NoRetry, func(conn Conn) error {
		switch d := any(delta).(type) {
		case float64:
			if negative {
				d = -d
			}
			v, err := conn.IncrByFloat(ctx, namespaced, d).Result()
			if err != nil {
				return err
			}
			result = any(v).(T)
		default:
			n := int64(delta)
			var v int64
			var err error
			if negative {
				v, err = conn.DecrBy(ctx, namespaced, n).Result()
			} else {
				v, err = conn.IncrBy(ctx, namespaced, n).Result()
			}
			if err != nil {
				return err
			}
			if _, ok := any(result).(int32); ok && (v > math.MaxInt32 || v < math.MinInt32) {
				return fmt.Errorf("%w: %d 超出int32范围", ErrDecodeMismatch, v)
			}
			result = T(v)
		}
		return nil
	})
	return result, err
}

// Exchange 写入新值并返回旧值。旧值不存在时返回零值。不重试。
func Exchange[T Scalar](ctx context.Context, s *Store, key string, value T) (T, error) {
	previous, _, err := exchange(ctx, s, key, value)
	return previous, err
}

// ExchangeNullable 写入新值并返回旧值，旧值不存在时返回nil
func ExchangeNullable[T Scalar](ctx context.Context, s *Store, key string, value T) (*T, error) {
	previous, ok, err := exchange(ctx, s, key, value)
	if err != nil || !ok {
		return nil, err
	}
	return &previous, nil
}

func exchange[T Scalar](ctx context.Context, s *Store, key string, value T) (T, bool, error) {
	var previous NativeValue
	raw := Encode(value)
	err := s.exec(ctx, "getset", NoRetry, func(conn Conn) error {
		var err error
		previous, err = nativeOf(conn.GetSet(ctx, NamespacedKey(s.namespace, key), raw))
		return err
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return Decode[T](previous)
}

// GetTimeToLive 读取剩余过期时长。键不存在或未设置过期时返回(0, false, nil)。
func (t *Store) GetTimeToLive(ctx context.Context, key string) (time.Duration, bool, error) {
	var ttl time.Duration
	err := t.exec(ctx, "ttl", t.retries, func(conn Conn) error {
		var err error
		ttl, err = conn.TTL(ctx, NamespacedKey(t.namespace, key)).Result()
		return err
	})
	if err != nil {
		return 0, false, err
	}
	// -1：未设置过期；-2：键不存在
	if ttl < 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

// SetTimeToLive 更新过期时长。expiry为nil表示未指定新值，*expiry小于等于0表示清除过期。
//
// 键不存在时什么都不做。键存在时，以下两种情况会执行更新：
//  1. 指定了expiry；
//  2. 未指定expiry，但键当前已设置过期。此时按未指定的expiry更新，即清除过期（PERSIST）。
//
// 未指定expiry且键未设置过期时什么都不做。
func (t *Store) SetTimeToLive(ctx context.Context, key string, expiry *time.Duration) error {
	namespaced := NamespacedKey(t.namespace, key)
	return t.write(ctx, "expire", t.retries, func(conn Conn) error {
		exists, err := conn.Exists(ctx, namespaced).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return nil
		}

		if expiry == nil {
			ttl, err := conn.TTL(ctx, namespaced).Result()
			if err != nil {
				return err
			}
			if ttl < 0 {
				return nil
			}
		}
		return keyExpire(ctx, conn, namespaced, expiry)
	})
}

// keyExpire expiry为nil或小于等于0时清除过期
func keyExpire(ctx context.Context, conn Conn, key string, expiry *time.Duration) error {
	if expiry == nil || *expiry <= 0 {
		return conn.Persist(ctx, key).Err()
	}
	return conn.Expire(ctx, key, *expiry).Err()
}
