package idp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingFetcher считает обращения к IdP.
type countingFetcher struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (f *countingFetcher) GetUser(_ context.Context, token string) (*User, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &User{ID: testUserID, Email: token + "@staffdesk.lan"}, nil
}

func TestTokenCache_Hit(t *testing.T) {
	fetcher := &countingFetcher{}
	cache := NewTokenCache(fetcher, 10, time.Minute)

	for i := 0; i < 3; i++ {
		user, err := cache.GetUser(context.Background(), "tok")
		if err != nil {
			t.Fatal(err)
		}
		if user.Email != "tok@staffdesk.lan" {
			t.Errorf("Email = %q", user.Email)
		}
	}
	if fetcher.calls.Load() != 1 {
		t.Errorf("обращений к IdP = %d, ожидается 1", fetcher.calls.Load())
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, ожидается 1", cache.Len())
	}
}

func TestTokenCache_ErrorsNotCached(t *testing.T) {
	fetcher := &countingFetcher{err: &Error{Status: 401, Message: "invalid JWT"}}
	cache := NewTokenCache(fetcher, 10, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.GetUser(context.Background(), "bad"); err == nil {
			t.Fatal("ожидалась ошибка")
		}
	}
	if fetcher.calls.Load() != 2 {
		t.Errorf("обращений к IdP = %d, ожидается 2", fetcher.calls.Load())
	}
}

func TestTokenCache_Disabled(t *testing.T) {
	fetcher := &countingFetcher{}
	cache := NewTokenCache(fetcher, 10, 0)

	cache.GetUser(context.Background(), "tok")
	cache.GetUser(context.Background(), "tok")
	if fetcher.calls.Load() != 2 {
		t.Errorf("обращений к IdP = %d, ожидается 2 без кэша", fetcher.calls.Load())
	}
}

func TestTokenCache_Coalesces(t *testing.T) {
	fetcher := &countingFetcher{delay: 50 * time.Millisecond}
	cache := NewTokenCache(fetcher, 10, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetUser(context.Background(), "shared"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("обращений к IdP = %d, ожидается 1", got)
	}
}

func TestTokenCache_ContextCancelled(t *testing.T) {
	fetcher := &countingFetcher{delay: 200 * time.Millisecond}
	cache := NewTokenCache(fetcher, 10, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := cache.GetUser(ctx, "slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ошибка = %v, ожидается DeadlineExceeded", err)
	}
}
