// Пакет ratelimit — in-memory ограничитель частоты запросов с фиксированным окном.
// Состояние живёт только в памяти процесса и не разделяется между инстансами.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pruneEvery — раз в сколько вызовов Hit удаляются устаревшие счётчики.
const pruneEvery = 250

var rejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bff_rate_limit_rejections_total",
		Help: "Количество запросов, отклонённых ограничителем частоты",
	},
	[]string{"scope"},
)

// Decision — результат учёта одного обращения.
type Decision struct {
	Allowed bool
	Hits    int
	Limit   int
	ResetAt time.Time
}

type bucket struct {
	windowStart time.Time
	hits        int
}

// Limiter — счётчики обращений по ключу. Безопасен для конкурентного использования.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	calls   int
	now     func() time.Time
}

// New создаёт Limiter. now — источник времени (nil — time.Now).
func New(now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     now,
	}
}

// Hit учитывает обращение по ключу и сообщает, укладывается ли оно в limit
// за окно window. Окно начинается с первого обращения и сбрасывается целиком.
func (l *Limiter) Hit(key string, limit int, window time.Duration) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%pruneEvery == 0 {
		l.prune(now, window)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}
	if now.Sub(b.windowStart) >= window {
		b.windowStart = now
		b.hits = 0
	}
	b.hits++

	d := Decision{
		Allowed: b.hits <= limit,
		Hits:    b.hits,
		Limit:   limit,
		ResetAt: b.windowStart.Add(window),
	}
	if !d.Allowed {
		rejectionsTotal.WithLabelValues(scopeOf(key)).Inc()
	}
	return d
}

// prune удаляет счётчики, окно которых началось раньше 2*window назад.
// Вызывается под l.mu.
func (l *Limiter) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-2 * window)
	for k, b := range l.buckets {
		if b.windowStart.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}

// Len возвращает количество отслеживаемых ключей.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// scopeOf возвращает префикс ключа вида "auth_login:ip" для лейбла метрики.
// Сам идентификатор (IP, email) в лейбл не попадает.
func scopeOf(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return "other"
	}
	return parts[0] + ":" + parts[1]
}
