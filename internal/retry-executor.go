package internal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Chngzhen/log4g"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
)

// NoRetry 只执行一次，失败直接返回
const NoRetry = 0

type RetryExecutor struct {
	// 首次重试前的等待时长。默认：50 * time.Millisecond。
	InitialInterval time.Duration
	// 重试等待时长的上限。默认：2 * time.Second。
	MaxInterval time.Duration
}

func NewRetryExecutor() *RetryExecutor {
	return &RetryExecutor{
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Do 执行work，失败后最多再重试maxAttempts次，全部失败则返回最后一次的错误。
// work可能被执行多次，调用方只能传入幂等操作。
func (e *RetryExecutor) Do(ctx context.Context, command string, maxAttempts int, work func() error) error {
	if maxAttempts <= NoRetry {
		return work()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.InitialInterval
	policy.MaxInterval = e.MaxInterval
	// 次数有上限，不再限制总时长
	policy.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := work()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || isCommandError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		commandRetries.WithLabelValues(command).Inc()
		log4g.Error("命令[%s]第%d次执行失败，%v后重试：%+v", command, attempt, wait, err)
	}
	return backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxAttempts)), ctx), notify)
}

// transientReplies 服务端在加载、主从切换、集群迁移期间返回的错误，稍后重试可能成功
var transientReplies = []string{"LOADING ", "READONLY ", "MASTERDOWN ", "TRYAGAIN ", "CLUSTERDOWN "}

// isCommandError 服务端对命令本身的拒绝（如WRONGTYPE、ERR），重试也不会成功
func isCommandError(err error) bool {
	var replyErr redis.Error
	if !errors.As(err, &replyErr) {
		return false
	}
	text := replyErr.Error()
	for _, prefix := range transientReplies {
		if strings.HasPrefix(text, prefix) {
			return false
		}
	}
	return true
}
