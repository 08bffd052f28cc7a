package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

const defaultConnectTimeout = 30 * time.Second

// connectWithBackoff 建立连接时的指数退避重试；只用于连接，数据操作不重试
func connectWithBackoff(ctx context.Context, name string, maxElapsed time.Duration, logger *zap.Logger, connect func() error) error {
	if maxElapsed <= 0 {
		maxElapsed = defaultConnectTimeout
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = maxElapsed

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		logger.Debug("connecting to database", zap.String("backend", name), zap.Int("attempt", attempt))
		return connect()
	}, bo, func(err error, wait time.Duration) {
		logger.Warn("database connection failed, retrying",
			zap.String("backend", name), zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s after %d attempts: %w", name, attempt, err)
	}

	logger.Info("database connection established", zap.String("backend", name), zap.Int("attempts", attempt))
	return nil
}
