// Package ratelimit - Token Bucket limiter для контроля частоты запросов к API биржи
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter - token bucket limiter
//
// Ведро наполняется токенами со скоростью rate токенов/сек,
// ёмкость ведра = burst (допускает короткие всплески, важно для
// пакетных ордеров). Каждый запрос потребляет 1 токен.
//
// Использование:
//
//	limiter := ratelimit.New(10, 20) // 10 req/sec, burst 20
//	if err := limiter.Wait(ctx); err != nil { ... }
type Limiter struct {
	rate       float64 // токенов в секунду
	burst      float64 // ёмкость ведра
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// New создаёт limiter
//
// rate - запросов в секунду, burst - максимальный всплеск
// (биржевой REST обычно 10 req/sec, burst 20)
func New(rate, burst float64) *Limiter {
	if rate <= 0 {
		rate = 10
	}
	if burst < rate {
		burst = rate
	}
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst, // начинаем с полным ведром
		lastRefill: time.Now(),
	}
}

// refill пополняет токены. Вызывается под lock'ом.
func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()

	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastRefill = now
}

// Allow - неблокирующая попытка получить токен
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Wait блокирует до получения токена или отмены контекста
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		// Время до появления следующего токена
		wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
