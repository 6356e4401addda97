// internal/infrastructure/api/upstream/client.go
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"crypto-weather-sync/internal/infrastructure/metrics"
	"crypto-weather-sync/pkg/logger"
)

const maxBodySize = 10 << 20

// Fetcher - абстракция HTTP GET, возвращающего JSON
type Fetcher interface {
	FetchJSON(ctx context.Context, url string) (json.RawMessage, error)
}

// ClientConfig - настройки клиента
type ClientConfig struct {
	Timeout         time.Duration
	RequestInterval time.Duration // минимальный интервал между запросами
	UserAgent       string
	Metrics         *metrics.Metrics
	HTTPClient      *http.Client
}

// Client - REST-клиент внешних API с равномерным темпом запросов
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	metrics    *metrics.Metrics
}

// NewClient создает клиента
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	// Настраиваем rate limiting: один запрос за интервал, без накопления
	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "CryptoWeatherSync/1.0"
	}

	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		userAgent:  userAgent,
		metrics:    cfg.Metrics,
	}
}

// FetchJSON выполняет GET и возвращает тело, если это валидный JSON.
// В логах и ошибках query-строка скрыта: в ней бывает ключ API.
func (c *Client) FetchJSON(ctx context.Context, rawURL string) (json.RawMessage, error) {
	safeURL := RedactURL(rawURL)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequest("network_error")
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = safeURL
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.UpstreamRequest(strconv.Itoa(resp.StatusCode/100) + "xx")

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Debug("🌐 %s → %d", safeURL, resp.StatusCode)
		return nil, &StatusError{URL: safeURL, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: body is not JSON", ErrMalformedResponse)
	}

	return json.RawMessage(body), nil
}

// RedactURL заменяет значения query-параметров на "***"
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	if u.RawQuery == "" {
		return u.String()
	}

	q := u.Query()
	for key := range q {
		q.Set(key, "***")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
