// internal/infrastructure/transport/push/backoff.go
package push

import "time"

// BackoffState - счетчик переподключений.
// Сбрасывается при каждом переходе в Open.
type BackoffState struct {
	Attempt   int
	NextDelay time.Duration
}

// LinearDelay - задержка перед попыткой attempt: base × attempt
func LinearDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return base * time.Duration(attempt)
}
