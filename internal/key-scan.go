package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Chngzhen/log4g"
	"github.com/go-redis/redis/v8"
)

const deleteBatchSize = 500

var _ Client = (*Store)(nil)

type keyScanner interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// masterIterator 集群客户端，需要逐个主节点扫描
type masterIterator interface {
	ForEachMaster(ctx context.Context, fn func(ctx context.Context, client *redis.Client) error) error
}

// ListKeys 列出当前命名空间下匹配的键，返回的键不带命名空间前缀。
// 使用SCAN遍历一个连接可见的全部键空间，键数量较多时代价很高，不建议在生产环境使用。不重试。
func (t *Store) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	match := t.match(pattern)
	var mu sync.Mutex
	var keys []string
	err := t.exec(ctx, "scan", NoRetry, func(conn Conn) error {
		return forEachNode(ctx, conn, t.options, func(ctx context.Context, address string, scanner keyScanner) error {
			_, err := scanKeys(ctx, scanner, match, func(batch []string) {
				mu.Lock()
				defer mu.Unlock()
				for _, key := range batch {
					keys = append(keys, StripNamespace(t.namespace, key))
				}
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// KeyReport 按节点汇总的扫描结果
type KeyReport struct {
	// 节点地址 -> 匹配的键数量
	Matched map[string]uint64
	// 实际删除的键数量，只有ClearKeys会填写
	Deleted int64

	mu sync.Mutex
}

func newKeyReport() *KeyReport {
	return &KeyReport{Matched: make(map[string]uint64)}
}

func (r *KeyReport) record(address string, matched uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Matched[address] = matched
}

// Total 所有节点的匹配数量之和
func (r *KeyReport) Total() uint64 {
	var total uint64
	for _, n := range r.Matched {
		total += n
	}
	return total
}

// Nodes 按地址排序的节点列表
func (r *KeyReport) Nodes() []string {
	nodes := make([]string, 0, len(r.Matched))
	for address := range r.Matched {
		nodes = append(nodes, address)
	}
	sort.Strings(nodes)
	return nodes
}

// CountKeys 统计各节点上匹配的键数量。节点扫描失败时记录日志，该节点计为0。
func (t *Store) CountKeys(ctx context.Context, pattern string) *KeyReport {
	match := t.match(pattern)
	report := newKeyReport()
	err := forEachNode(ctx, t.pool.Acquire(), t.options, func(ctx context.Context, address string, scanner keyScanner) error {
		matched, err := scanKeys(ctx, scanner, match, nil)
		if err != nil {
			log4g.Error("节点[%s]扫描异常：%+v", address, err)
			matched = 0
		}
		report.record(address, matched)
		return nil
	})
	observe("scan", err)
	if err != nil {
		log4g.Error("%+v", err)
	}
	return report
}

// ClearKeys 删除当前命名空间下匹配的键，需要连接串中allowAdmin=true。
// 扫描与删除并行：扫描协程把键写入通道，删除协程按批次用管道提交DEL。
// 扫描失败或部分键删除失败时，仍返回已完成部分的统计。
func (t *Store) ClearKeys(ctx context.Context, pattern string) (*KeyReport, error) {
	if !t.options.AllowAdmin {
		return nil, ErrAdminDisabled
	}
	if pattern == "" && t.namespace == "" {
		return nil, errors.New("匹配格式不能为空")
	}

	match := t.match(pattern)
	conn := t.pool.Acquire()
	keyChannel := make(chan string, 1000)
	report := newKeyReport()

	var scanErr, delErr error
	var wg sync.WaitGroup
	wg.Add(2)
	// 查找协程
	go func() {
		defer wg.Done()
		defer close(keyChannel)
		scanErr = forEachNode(ctx, conn, t.options, func(ctx context.Context, address string, scanner keyScanner) error {
			log4g.Info("开始扫描[%s]...", address)
			matched, err := scanKeys(ctx, scanner, match, func(keys []string) {
				for _, key := range keys {
					keyChannel <- key
				}
			})
			report.record(address, matched)
			log4g.Info("结束扫描[%s]，匹配%d个键", address, matched)
			return err
		})
	}()

	// 删除协程
	go func() {
		defer wg.Done()
		deleter := newBatchDeleter(conn)
		for key := range keyChannel {
			deleter.add(ctx, key)
		}
		deleter.flush(ctx)
		report.Deleted = deleter.deleted
		if deleter.failed > 0 {
			delErr = fmt.Errorf("%d个键删除失败", deleter.failed)
		}
	}()
	wg.Wait()

	err := errors.Join(scanErr, delErr)
	observe("clear", err)
	return report, err
}

func (t *Store) match(pattern string) string {
	if pattern == "" {
		pattern = "*"
	}
	if t.namespace == "" {
		return pattern
	}
	return namespacePattern(t.namespace) + pattern
}

// forEachNode 集群逐个主节点执行fn，其他情况直接对连接执行
func forEachNode(ctx context.Context, conn Conn, options *Options, fn func(ctx context.Context, address string, scanner keyScanner) error) error {
	if cluster, ok := conn.(masterIterator); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, rdb *redis.Client) error {
			return fn(ctx, rdb.Options().Addr, rdb)
		})
	}
	address := options.Hosts[0]
	if client, ok := conn.(*redis.Client); ok {
		address = client.Options().Addr
	}
	return fn(ctx, address, conn)
}

// scanKeys 从游标0开始扫描，直到游标重新回到0。onKeys可为nil。
func scanKeys(ctx context.Context, scanner keyScanner, match string, onKeys func(keys []string)) (uint64, error) {
	var err error
	var hasNext = true
	var cursor, matchedTotal uint64
	for hasNext {
		var keys []string
		if keys, cursor, err = scanner.Scan(ctx, cursor, match, 0).Result(); err != nil {
			return matchedTotal, err
		}
		if onKeys != nil {
			onKeys(keys)
		}
		matchedTotal += uint64(len(keys))

		hasNext = cursor != 0
	}
	return matchedTotal, nil
}

// batchDeleter 把DEL攒成批次，通过管道一次提交
type batchDeleter struct {
	pipeline redis.Pipeliner
	pending  []*redis.IntCmd
	deleted  int64
	failed   int
}

func newBatchDeleter(conn Conn) *batchDeleter {
	return &batchDeleter{
		pipeline: conn.Pipeline(),
		pending:  make([]*redis.IntCmd, 0, deleteBatchSize),
	}
}

func (d *batchDeleter) add(ctx context.Context, key string) {
	d.pending = append(d.pending, d.pipeline.Del(ctx, key))
	if len(d.pending) == deleteBatchSize {
		d.flush(ctx)
	}
}

// flush 提交当前批次。单条失败只计数，不影响同批次其他键。
func (d *batchDeleter) flush(ctx context.Context) {
	if len(d.pending) == 0 {
		return
	}
	if _, err := d.pipeline.Exec(ctx); err != nil {
		log4g.Error("管道提交失败（%d个键）：%+v", len(d.pending), err)
	}
	for _, cmd := range d.pending {
		if cmd.Err() != nil {
			d.failed++
			continue
		}
		d.deleted += cmd.Val()
	}
	d.pending = d.pending[:0]
}
