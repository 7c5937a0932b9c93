package cache

import (
	"context"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockExpiry     = 30 * time.Second
	defaultLockTries      = 64
	defaultLockRetryDelay = 50 * time.Millisecond
)

// DistributedLockService 分布式锁服务，多副本部署时串行化账本写操作
type DistributedLockService struct {
	rs         *redsync.Redsync
	expiry     time.Duration
	tries      int
	retryDelay time.Duration
}

// NewDistributedLockService 基于已有的Redis客户端创建锁服务
func NewDistributedLockService(client *redis.Client, expiry time.Duration) *DistributedLockService {
	if expiry <= 0 {
		expiry = defaultLockExpiry
	}
	return &DistributedLockService{
		rs:         redsync.New(goredis.NewPool(client)),
		expiry:     expiry,
		tries:      defaultLockTries,
		retryDelay: defaultLockRetryDelay,
	}
}

// AcquireLock 尝试获取锁
func (s *DistributedLockService) AcquireLock(ctx context.Context, lockName string) (*redsync.Mutex, error) {
	mutex := s.rs.NewMutex("lock:"+lockName,
		redsync.WithExpiry(s.expiry),
		redsync.WithTries(s.tries),
		redsync.WithRetryDelay(s.retryDelay),
		redsync.WithDriftFactor(0.01),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, errors.Wrapf(ErrLockNotAcquired, "%s: %v", lockName, err)
	}
	return mutex, nil
}

// WithLock 在锁内执行操作
func (s *DistributedLockService) WithLock(ctx context.Context, lockName string, action func() error) error {
	mutex, err := s.AcquireLock(ctx, lockName)
	if err != nil {
		return err
	}
	// 调用方取消后仍需释放锁
	defer func() {
		_, _ = mutex.UnlockContext(context.WithoutCancel(ctx))
	}()

	return action()
}
