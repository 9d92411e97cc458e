package sequence

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"payout-controlplane/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

const (
	submissionSequence = "submission"

	// ReferralCodeLength is the number of characters of a referral code.
	ReferralCodeLength = 8

	maxCodeAttempts = 5
)

var ErrCodeExhausted = errors.New("sequence: could not reserve a unique referral code")

type Generator interface {
	// NextSubmissionSequence returns the next global submission number, starting at 1.
	NextSubmissionSequence(ctx context.Context) (int64, error)
	// NextReferralCode returns a reserved code of ReferralCodeLength characters from A-Z0-9.
	NextReferralCode(ctx context.Context) (string, error)
	// SeedSubmissionSequence raises the counter to at least floor.
	SeedSubmissionSequence(ctx context.Context, floor int64) error
}

// Store is the subset of redis commands the generator uses.
type Store interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

type RedisGenerator struct {
	rdb Store
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

// NewGenerator builds a generator on any Store.
func NewGenerator(store Store) *RedisGenerator {
	return &RedisGenerator{rdb: store}
}

func (g *RedisGenerator) NextSubmissionSequence(ctx context.Context) (int64, error) {
	seq, err := g.rdb.Incr(ctx, rediskey.BuildSequenceKey(submissionSequence)).Result()
	if err != nil {
		return 0, fmt.Errorf("next submission sequence: %w", err)
	}
	return seq, nil
}

func (g *RedisGenerator) SeedSubmissionSequence(ctx context.Context, floor int64) error {
	key := rediskey.BuildSequenceKey(submissionSequence)

	ok, err := g.rdb.SetNX(ctx, key, floor, 0).Result()
	if err != nil {
		return fmt.Errorf("seed submission sequence: %w", err)
	}
	if ok {
		return nil
	}

	raw, err := g.rdb.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("read submission sequence: %w", err)
	}
	current, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse submission sequence %q: %w", raw, err)
	}
	if current >= floor {
		return nil
	}

	zap.L().Warn("[Sequence] raising submission counter", zap.Int64("from", current), zap.Int64("to", floor))
	return g.rdb.Set(ctx, key, floor, 0).Err()
}

func (g *RedisGenerator) NextReferralCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := randomAlphaNumeric(ReferralCodeLength)
		if err != nil {
			return "", err
		}

		ok, err := g.rdb.SetNX(ctx, rediskey.BuildReferralCodeKey(code), 1, 0).Result()
		if err != nil {
			return "", fmt.Errorf("reserve referral code: %w", err)
		}
		if ok {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}
