package otp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func openTestRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
		return nil
	}
	return client
}

func TestRedeemConsumesCodeOnce(t *testing.T) {
	client := openTestRedis(t)
	if client == nil {
		return
	}
	defer client.Close()

	store := NewCodeStore(client, time.Minute)
	ctx := context.Background()
	email := fmt.Sprintf("redeem.%d@test.local", time.Now().UnixNano())

	if err := store.Issue(ctx, "admin", email, "123456"); err != nil {
		t.Fatalf("issue error: %v", err)
	}
	if err := store.Redeem(ctx, "admin", email, "123456"); err != nil {
		t.Fatalf("expected first redeem to succeed, got %v", err)
	}
	if err := store.Redeem(ctx, "admin", email, "123456"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected second redeem to fail, got %v", err)
	}
}

func TestRedeemUnknownCode(t *testing.T) {
	client := openTestRedis(t)
	if client == nil {
		return
	}
	defer client.Close()

	store := NewCodeStore(client, time.Minute)
	email := fmt.Sprintf("unknown.%d@test.local", time.Now().UnixNano())
	if err := store.Redeem(context.Background(), "hod", email, "000000"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected invalid code error, got %v", err)
	}
}

func TestRedeemExpiredCode(t *testing.T) {
	client := openTestRedis(t)
	if client == nil {
		return
	}
	defer client.Close()

	store := NewCodeStore(client, 50*time.Millisecond)
	ctx := context.Background()
	email := fmt.Sprintf("expired.%d@test.local", time.Now().UnixNano())

	if err := store.Issue(ctx, "student", email, "654321"); err != nil {
		t.Fatalf("issue error: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := store.Redeem(ctx, "student", email, "654321"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected expired code error, got %v", err)
	}
}

func TestConcurrentRedeem(t *testing.T) {
	client := openTestRedis(t)
	if client == nil {
		return
	}
	defer client.Close()

	store := NewCodeStore(client, time.Minute)
	ctx := context.Background()
	email := fmt.Sprintf("race.%d@test.local", time.Now().UnixNano())

	if err := store.Issue(ctx, "admin", email, "999999"); err != nil {
		t.Fatalf("issue error: %v", err)
	}

	workers := 8
	results := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.Redeem(ctx, "admin", email, "999999")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrInvalidOrExpiredCode) {
			t.Fatalf("unexpected redeem error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one successful redeem, got %d", successes)
	}
}

func TestMultiplePendingCodesCoexist(t *testing.T) {
	client := openTestRedis(t)
	if client == nil {
		return
	}
	defer client.Close()

	store := NewCodeStore(client, time.Minute)
	ctx := context.Background()
	email := fmt.Sprintf("pending.%d@test.local", time.Now().UnixNano())

	if err := store.Issue(ctx, "hod", email, "111111"); err != nil {
		t.Fatalf("issue error: %v", err)
	}
	if err := store.Issue(ctx, "hod", email, "222222"); err != nil {
		t.Fatalf("issue error: %v", err)
	}
	if err := store.Redeem(ctx, "hod", email, "111111"); err != nil {
		t.Fatalf("expected older code to stay redeemable, got %v", err)
	}
	if err := store.Redeem(ctx, "hod", email, "222222"); err != nil {
		t.Fatalf("expected newer code to stay redeemable, got %v", err)
	}
}
