// internal/infrastructure/cache/upstreamcache/retry.go
package upstreamcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crypto-weather-sync/internal/infrastructure/api/upstream"
	"crypto-weather-sync/pkg/logger"
)

// RetryPolicy - ограниченные повторы запроса к апстриму
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryPolicy - 3 попытки, базовая задержка 2 секунды
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second}
}

// Delay возвращает паузу после неудачной попытки attempt (нумерация с 1).
// При 429 пауза растет линейно: BaseDelay × attempt, иначе фиксированная BaseDelay.
func (p RetryPolicy) Delay(attempt int, err error) time.Duration {
	if upstream.IsRateLimited(err) {
		return p.BaseDelay * time.Duration(attempt)
	}
	return p.BaseDelay
}

// WaitFunc - ожидание между попытками с учетом контекста
type WaitFunc func(ctx context.Context, d time.Duration) error

// retryReason - метка причины повтора для метрик
func retryReason(err error) string {
	if upstream.IsRateLimited(err) {
		return "rate_limited"
	}
	return "transient"
}

// do выполняет fetch до p.Attempts раз
func (p RetryPolicy) do(ctx context.Context, key string, fetch FetchFunc, wait WaitFunc, onRetry func(reason string)) (json.RawMessage, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := fetch(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		// Окончательный отказ не повторяем
		if upstream.IsPermanent(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt, err)
		reason := retryReason(err)
		logger.Warn("🔁 %s: попытка %d/%d не удалась (%s): %v, повтор через %v",
			key, attempt, attempts, reason, err, delay)
		if onRetry != nil {
			onRetry(reason)
		}

		if err := wait(ctx, delay); err != nil {
			return nil, fmt.Errorf("retry wait interrupted: %w", lastErr)
		}
	}

	return nil, fmt.Errorf("upstream fetch failed after %d attempts: %w", attempts, lastErr)
}
