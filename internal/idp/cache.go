package idp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

// Prometheus-метрики кэша проверки токенов.
var (
	tokenCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bff_idp_token_cache_hits_total",
		Help: "Количество попаданий в кэш проверки access token.",
	})
	tokenCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bff_idp_token_cache_misses_total",
		Help: "Количество промахов кэша проверки access token.",
	})
)

// UserFetcher — проверка токена в IdP.
type UserFetcher interface {
	GetUser(ctx context.Context, accessToken string) (*User, error)
}

// TokenCache — кэш результатов GetUser с TTL.
// Ключ — SHA-256 токена, сам токен в памяти не хранится.
// Параллельные проверки одного токена объединяются в один запрос к IdP.
// Кэшируются только успешные проверки.
type TokenCache struct {
	fetcher UserFetcher
	cache   *expirable.LRU[string, *User]
	group   singleflight.Group
}

// NewTokenCache создаёт кэш. ttl == 0 — кэширование отключено,
// объединение параллельных запросов сохраняется.
func NewTokenCache(fetcher UserFetcher, maxSize int, ttl time.Duration) *TokenCache {
	c := &TokenCache{fetcher: fetcher}
	if ttl > 0 {
		c.cache = expirable.NewLRU[string, *User](maxSize, nil, ttl)
	}
	return c
}

// GetUser возвращает владельца токена из кэша или из IdP.
func (c *TokenCache) GetUser(ctx context.Context, accessToken string) (*User, error) {
	key := tokenKey(accessToken)

	if c.cache != nil {
		if user, ok := c.cache.Get(key); ok {
			tokenCacheHitsTotal.Inc()
			return user, nil
		}
		tokenCacheMissesTotal.Inc()
	}

	// Общий запрос не должен отменяться из-за первого вызывающего
	ch := c.group.DoChan(key, func() (any, error) {
		user, err := c.fetcher.GetUser(context.WithoutCancel(ctx), accessToken)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Add(key, user)
		}
		return user, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*User), nil
	}
}

// Len возвращает количество записей в кэше.
func (c *TokenCache) Len() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
