package cache

import (
	"context"

	"github.com/OneOfOne/xxhash"
	"github.com/redis/go-redis/v9"
)

const (
	// VotingKeysFilter 已创建投票键的布隆过滤器名称
	VotingKeysFilter = "voting_keys"

	defaultBloomBits   = 1 << 24
	defaultBloomHashes = 5
)

// BloomFilter 布隆过滤器实现，位数组保存在 Redis 中
type BloomFilter struct {
	redisClient RedisClient
	key         string
	bits        uint64
	hashCount   int
}

// NewBloomFilter 创建新的布隆过滤器
func NewBloomFilter(client RedisClient, key string, bits uint64, hashCount int) *BloomFilter {
	if bits == 0 {
		bits = defaultBloomBits
	}
	if hashCount <= 0 {
		hashCount = defaultBloomHashes
	}
	return &BloomFilter{
		redisClient: client,
		key:         "bloom:" + key,
		bits:        bits,
		hashCount:   hashCount,
	}
}

// Add 添加元素到布隆过滤器
func (bf *BloomFilter) Add(ctx context.Context, item string) error {
	if bf.redisClient == nil {
		return ErrRedisNotAvailable
	}

	pipe := bf.redisClient.Pipeline()
	for _, pos := range bf.positions(item) {
		pipe.SetBit(ctx, bf.key, pos, 1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Contains 检查元素是否可能存在于布隆过滤器中
func (bf *BloomFilter) Contains(ctx context.Context, item string) (bool, error) {
	if bf.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	pipe := bf.redisClient.Pipeline()
	cmds := make([]*redis.IntCmd, 0, bf.hashCount)
	for _, pos := range bf.positions(item) {
		cmds = append(cmds, pipe.GetBit(ctx, bf.key, pos))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	// 任何一个位为0，则元素肯定不存在
	for _, cmd := range cmds {
		if cmd.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Reset 清空位数组
func (bf *BloomFilter) Reset(ctx context.Context) error {
	if bf.redisClient == nil {
		return ErrRedisNotAvailable
	}
	return bf.redisClient.Del(ctx, bf.key).Err()
}

// positions 每个种子一个 xxhash64
func (bf *BloomFilter) positions(item string) []int64 {
	out := make([]int64, bf.hashCount)
	for i := range out {
		h := xxhash.NewS64(uint64(i))
		h.Write([]byte(item))
		out[i] = int64(h.Sum64() % bf.bits)
	}
	return out
}
