package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Policy 退避重试策略
type Policy struct {
	Attempts   int           // 总尝试次数（含首次）
	BaseDelay  time.Duration // 首次失败后的等待时间
	MaxDelay   time.Duration // 等待时间上限
	Multiplier float64       // 每次失败后等待时间的乘数
	Timeout    time.Duration // 整体超时，0 表示不限制
	Logger     *logrus.Logger
}

// DefaultPolicy 默认策略：3 次尝试，500ms 起步，指数退避
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Logger:     logrus.New(),
	}
}

// Delay 返回第 attempt 次失败后的等待时间（attempt 从 1 开始）
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if time.Duration(d) >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// permanentError 包装不应重试的错误
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记错误为永久失败，Do 遇到后立即放弃
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 判断错误是否被标记为永久失败
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do 按策略执行 op，直到成功、遇到永久错误或尝试耗尽。
// 上下文取消视为永久失败。
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s canceled: %w", op, err)
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				p.Logger.WithFields(logrus.Fields{
					"op":      op,
					"attempt": attempt,
				}).Info("操作重试后成功")
			}
			return nil
		}
		lastErr = err

		if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.Logger.WithError(err).WithField("op", op).Warn("永久失败，放弃重试")
			return fmt.Errorf("%s: %w", op, err)
		}

		if attempt == p.Attempts {
			break
		}

		wait := p.Delay(attempt)
		p.Logger.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"max":     p.Attempts,
			"wait":    wait,
			"error":   err.Error(),
		}).Warn("操作失败，等待重试")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during wait: %w", op, ctx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("%s: %d attempts exhausted: %w", op, p.Attempts, lastErr)
}
