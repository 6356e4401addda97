// internal/infrastructure/api/cryptocompare/source.go
package cryptocompare

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"crypto-weather-sync/internal/infrastructure/api/upstream"
	"crypto-weather-sync/internal/infrastructure/cache/upstreamcache"
)

const (
	DefaultBaseURL = "https://min-api.cryptocompare.com/data/v2"
	DefaultLimit   = 5

	noDescription = "No description available"
)

// NewsItem - новость ленты
type NewsItem struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// NewsResult - лента с признаком устаревших данных
type NewsResult struct {
	Items     []NewsItem
	FetchedAt time.Time
	Stale     bool
}

// Config - настройки источника
type Config struct {
	BaseURL string
	Lang    string
	Limit   int
	TTL     time.Duration
}

// Source - новости CryptoCompare за кэшем апстрима
type Source struct {
	fetcher upstream.Fetcher
	cache   *upstreamcache.Cache
	cfg     Config
}

// NewSource создает источник
func NewSource(fetcher upstream.Fetcher, cache *upstreamcache.Cache, cfg Config) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Lang == "" {
		cfg.Lang = "EN"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &Source{fetcher: fetcher, cache: cache, cfg: cfg}
}

// Latest возвращает первые Limit новостей. Ключ кэша - news-<lang>.
func (s *Source) Latest(ctx context.Context) (NewsResult, error) {
	key := "news-" + s.cfg.Lang
	endpoint := fmt.Sprintf("%s/news/?lang=%s", s.cfg.BaseURL, s.cfg.Lang)

	res, err := s.cache.Get(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		raw, err := s.fetcher.FetchJSON(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("cryptocompare news: %w", err)
		}
		return s.mapNews(raw)
	}, s.cfg.TTL)
	if err != nil {
		return NewsResult{}, err
	}

	var items []NewsItem
	if err := json.Unmarshal(res.Value, &items); err != nil {
		return NewsResult{}, fmt.Errorf("%w: decode news: %v", upstream.ErrMalformedResponse, err)
	}
	return NewsResult{Items: items, FetchedAt: res.FetchedAt, Stale: res.Stale}, nil
}

// mapNews приводит ответ к []NewsItem. Ответ без Data - повторяемая ошибка.
func (s *Source) mapNews(raw json.RawMessage) (json.RawMessage, error) {
	data := gjson.GetBytes(raw, "Data")
	if !data.IsArray() || len(data.Array()) == 0 {
		return nil, fmt.Errorf("%w: no news data available", upstream.ErrMalformedResponse)
	}

	items := make([]NewsItem, 0, s.cfg.Limit)
	for _, item := range data.Array() {
		if len(items) == s.cfg.Limit {
			break
		}
		description := item.Get("body").String()
		if description == "" {
			description = noDescription
		}
		items = append(items, NewsItem{
			Title:       item.Get("title").String(),
			Description: description,
			URL:         item.Get("url").String(),
			Source:      item.Get("source").String(),
			PublishedAt: time.Unix(item.Get("published_on").Int(), 0).UTC(),
		})
	}

	out, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode news: %w", err)
	}
	return out, nil
}
