package internal

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Chngzhen/log4g"
	"github.com/go-redis/redis/v8"
)

// Pool 固定数量的连接，轮询使用。连接不会被独占，也不会归还：每个连接本身支持并发命令。
type Pool struct {
	conns  []Conn
	cursor atomic.Uint64
	closed atomic.Bool
}

// OpenPool 一次性打开size个连接。任一连接打开失败时关闭已打开的连接并返回错误。
func OpenPool(ctx context.Context, options *Options, size int, dial Dialer) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: 连接池大小必须大于0，当前：%d", ErrConfiguration, size)
	}
	if dial == nil {
		dial = DialUniversal
	}

	conns := make([]Conn, 0, size)
	for i := 0; i < size; i++ {
		conn, err := dial(ctx, options)
		if err != nil {
			log4g.Error("第%d/%d个连接打开失败：%+v", i+1, size, err)
			closeAll(conns)
			return nil, err
		}
		conns = append(conns, conn)
		poolConnections.Inc()
	}
	log4g.Info("已打开%d个连接：%v", size, options.Hosts)
	return &Pool{conns: conns}, nil
}

// Acquire 按轮询顺序返回下一个连接，从下标0开始
func (p *Pool) Acquire() Conn {
	n := uint64(len(p.conns))
	for {
		current := p.cursor.Load()
		if p.cursor.CompareAndSwap(current, (current+1)%n) {
			return p.conns[current]
		}
	}
}

func (p *Pool) Size() int {
	return len(p.conns)
}

// Close 关闭所有连接，重复调用无效。单个连接关闭失败只记录日志。
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	closeAll(p.conns)
}

func closeAll(conns []Conn) {
	for i, conn := range conns {
		if err := conn.Close(); err != nil {
			log4g.Error("第%d个连接关闭失败：%+v", i+1, err)
		}
		poolConnections.Dec()
	}
}

// DialUniversal 按配置创建go-redis客户端：单节点、集群（多个节点）或哨兵（ServiceName非空）
func DialUniversal(ctx context.Context, options *Options) (Conn, error) {
	client := redis.NewUniversalClient(options.universal())

	// 检查Redis的网络状况
	err := NewRetryExecutor().Do(ctx, "ping", options.ConnectRetryCount, func() error {
		if cluster, ok := client.(*redis.ClusterClient); ok {
			return cluster.ForEachShard(ctx, func(ctx context.Context, shard *redis.Client) error {
				return shard.Ping(ctx).Err()
			})
		}
		return client.Ping(ctx).Err()
	})
	if err != nil {
		if options.AbortOnConnectFail {
			_ = client.Close()
			return nil, err
		}
		log4g.Error("连接%v失败，将在执行命令时重连：%+v", options.Hosts, err)
	}
	return client, nil
}
