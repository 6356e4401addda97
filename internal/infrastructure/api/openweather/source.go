// internal/infrastructure/api/openweather/source.go
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"crypto-weather-sync/internal/infrastructure/api/upstream"
	"crypto-weather-sync/internal/infrastructure/cache/upstreamcache"
	"crypto-weather-sync/internal/types"
)

const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// ErrCityNotFound - OpenWeather не знает город
var ErrCityNotFound = errors.New("city not found")

// Config - настройки источника
type Config struct {
	BaseURL string
	APIKey  string
	TTL     time.Duration
}

// Source - текущая погода OpenWeather за кэшем апстрима
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
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &Source{fetcher: fetcher, cache: cache, cfg: cfg}
}

// Current возвращает погоду в городе (метрические единицы). Ключ кэша - имя города.
func (s *Source) Current(ctx context.Context, city string) (types.WeatherSnapshot, bool, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return types.WeatherSnapshot{}, false, upstream.Permanent(fmt.Errorf("%w: missing city", upstream.ErrInvalidRequest))
	}
	if s.cfg.APIKey == "" {
		return types.WeatherSnapshot{}, false, fmt.Errorf("openweather: %w: API key is empty", upstream.ErrNotConfigured)
	}

	endpoint := fmt.Sprintf("%s/weather?q=%s&units=metric&appid=%s",
		s.cfg.BaseURL, url.QueryEscape(city), url.QueryEscape(s.cfg.APIKey))

	res, err := s.cache.Get(ctx, city, func(ctx context.Context) (json.RawMessage, error) {
		raw, err := s.fetcher.FetchJSON(ctx, endpoint)
		if upstream.IsNotFound(err) {
			return nil, upstream.Permanent(fmt.Errorf("openweather %q: %w", city, ErrCityNotFound))
		}
		if err != nil {
			return nil, fmt.Errorf("openweather %q: %w", city, err)
		}
		if !gjson.GetBytes(raw, "main.temp").Exists() {
			return nil, fmt.Errorf("%w: weather for %q without main.temp", upstream.ErrMalformedResponse, city)
		}
		return raw, nil
	}, s.cfg.TTL)
	if err != nil {
		return types.WeatherSnapshot{}, false, err
	}

	return parseSnapshot(city, res.Value, res.FetchedAt), res.Stale, nil
}

// parseSnapshot читает поля main.temp, main.humidity, weather[0]
func parseSnapshot(city string, raw json.RawMessage, fetchedAt time.Time) types.WeatherSnapshot {
	doc := gjson.ParseBytes(raw)

	observed := fetchedAt
	if dt := doc.Get("dt"); dt.Exists() && dt.Int() > 0 {
		observed = time.Unix(dt.Int(), 0).UTC()
	}

	return types.WeatherSnapshot{
		City:        city,
		Temperature: doc.Get("main.temp").Float(),
		Humidity:    doc.Get("main.humidity").Float(),
		Condition:   doc.Get("weather.0.main").String(),
		Description: doc.Get("weather.0.description").String(),
		ObservedAt:  observed,
	}
}
