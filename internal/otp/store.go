package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidOrExpiredCode is returned when no pending code matches the
// exact (role, email, code) triple, either because it was never issued,
// already consumed, or expired out of redis.
var ErrInvalidOrExpiredCode = errors.New("invalid or expired verification code")

// CodeStore keeps pending verification codes in redis, one key per issued
// code. The TTL bounds the redemption window and sweeps stale codes;
// issuing a new code never invalidates codes still outstanding for the
// same email.
type CodeStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewCodeStore(client *redis.Client, ttl time.Duration) *CodeStore {
	return &CodeStore{redis: client, ttl: ttl}
}

func (s *CodeStore) Issue(ctx context.Context, role, email, code string) error {
	if s.redis == nil {
		return errors.New("redis_not_configured")
	}
	value := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	return s.redis.Set(ctx, verificationKey(role, email, code), value, s.ttl).Err()
}

// Redeem consumes the code with an atomic GETDEL: of any number of
// concurrent redemptions of the same code, exactly one succeeds.
func (s *CodeStore) Redeem(ctx context.Context, role, email, code string) error {
	if s.redis == nil {
		return errors.New("redis_not_configured")
	}
	_, err := s.redis.GetDel(ctx, verificationKey(role, email, code)).Result()
	if err == redis.Nil {
		return ErrInvalidOrExpiredCode
	}
	return err
}

func verificationKey(role, email, code string) string {
	return fmt.Sprintf("verification:%s:%s:%s", role, email, code)
}
