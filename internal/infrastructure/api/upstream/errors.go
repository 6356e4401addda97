// internal/infrastructure/api/upstream/errors.go
package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMalformedResponse - ответ не является ожидаемым JSON (повторяемая ошибка)
	ErrMalformedResponse = errors.New("malformed upstream response")
	// ErrNotConfigured - не хватает настроек (например, API-ключа); повтор не поможет
	ErrNotConfigured = errors.New("upstream not configured")
	// ErrInvalidRequest - запрос заведомо некорректен (пустой параметр и т.п.)
	ErrInvalidRequest = errors.New("invalid upstream request")
)

// StatusError - ответ API с кодом, отличным от 200
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("upstream returned status %d (%s): %s", e.StatusCode, http.StatusText(e.StatusCode), body)
}

// permanentError помечает ошибку как окончательную
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent оборачивает ошибку так, что IsPermanent вернет true
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRateLimited проверяет сигнал ограничения частоты (HTTP 429)
func IsRateLimited(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsPermanent проверяет, что повтор запроса не изменит результат
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrInvalidRequest) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusMethodNotAllowed,
			http.StatusUnprocessableEntity:
			return true
		}
	}
	return false
}

// IsNotFound - апстрим не знает запрошенный объект (город, монету)
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
