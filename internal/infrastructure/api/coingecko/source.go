// internal/infrastructure/api/coingecko/source.go
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"crypto-weather-sync/internal/infrastructure/api/upstream"
	"crypto-weather-sync/internal/infrastructure/cache/upstreamcache"
	"crypto-weather-sync/internal/types"
	"crypto-weather-sync/pkg/logger"
)

const (
	DefaultBaseURL     = "https://api.coingecko.com/api/v3"
	DefaultHistoryDays = 7
)

// Market - запись /coins/markets (поля, которые читает ядро)
type Market struct {
	ID                       string  `json:"id"`
	Symbol                   string  `json:"symbol"`
	Name                     string  `json:"name"`
	Image                    string  `json:"image,omitempty"`
	CurrentPrice             float64 `json:"current_price"`
	MarketCap                float64 `json:"market_cap"`
	TotalVolume              float64 `json:"total_volume"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
}

// Snapshot приводит запись к снапшоту цены
func (m Market) Snapshot() types.PriceSnapshot {
	return types.PriceSnapshot{ID: m.ID, Name: m.Name, Price: m.CurrentPrice}
}

// MarketChart - история /coins/{id}/market_chart: пары [timestamp_ms, value]
type MarketChart struct {
	Prices       [][2]float64 `json:"prices"`
	MarketCaps   [][2]float64 `json:"market_caps"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// MarketsResult - ответ Markets с признаком устаревших данных
type MarketsResult struct {
	Markets   []Market
	FetchedAt time.Time
	Stale     bool
}

// Config - настройки источника
type Config struct {
	BaseURL    string
	PriceTTL   time.Duration
	HistoryTTL time.Duration
}

// Source - рыночные данные CoinGecko за кэшем апстрима
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
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = 30 * time.Second
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = 5 * time.Minute
	}

	return &Source{fetcher: fetcher, cache: cache, cfg: cfg}
}

// NormalizeIDs убирает пробелы и пустые элементы, сохраняя порядок
func NormalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Markets возвращает рыночные данные по списку монет.
// Ключ кэша - id через запятую в исходном порядке.
func (s *Source) Markets(ctx context.Context, ids []string) (MarketsResult, error) {
	ids = NormalizeIDs(ids)
	if len(ids) == 0 {
		return MarketsResult{}, upstream.Permanent(fmt.Errorf("%w: no valid cryptocurrency ids provided", upstream.ErrInvalidRequest))
	}

	key := strings.Join(ids, ",")
	endpoint := fmt.Sprintf("%s/coins/markets?vs_currency=usd&ids=%s&order=market_cap_desc&per_page=100&page=1&sparkline=false",
		s.cfg.BaseURL, url.QueryEscape(key))

	res, err := s.cache.Get(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		raw, err := s.fetcher.FetchJSON(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("coingecko markets: %w", err)
		}
		return filterMarkets(raw)
	}, s.cfg.PriceTTL)
	if err != nil {
		return MarketsResult{}, err
	}

	var markets []Market
	if err := json.Unmarshal(res.Value, &markets); err != nil {
		return MarketsResult{}, fmt.Errorf("%w: decode markets: %v", upstream.ErrMalformedResponse, err)
	}

	return MarketsResult{Markets: markets, FetchedAt: res.FetchedAt, Stale: res.Stale}, nil
}

// Prices возвращает снапшоты цен по списку монет
func (s *Source) Prices(ctx context.Context, ids []string) ([]types.PriceSnapshot, bool, error) {
	res, err := s.Markets(ctx, ids)
	if err != nil {
		return nil, false, err
	}

	snapshots := make([]types.PriceSnapshot, 0, len(res.Markets))
	for _, m := range res.Markets {
		snapshots = append(snapshots, m.Snapshot())
	}
	return snapshots, res.Stale, nil
}

// History возвращает историю цены монеты за days дней (ключ кэша id-days)
func (s *Source) History(ctx context.Context, id string, days int) (MarketChart, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return MarketChart{}, false, upstream.Permanent(fmt.Errorf("%w: missing cryptocurrency id", upstream.ErrInvalidRequest))
	}
	if days <= 0 {
		days = DefaultHistoryDays
	}

	key := id + "-" + strconv.Itoa(days)
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=%d",
		s.cfg.BaseURL, url.PathEscape(id), days)

	res, err := s.cache.Get(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		raw, err := s.fetcher.FetchJSON(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("coingecko history: %w", err)
		}
		if !gjson.GetBytes(raw, "prices").IsArray() {
			return nil, fmt.Errorf("%w: market_chart without prices", upstream.ErrMalformedResponse)
		}
		return raw, nil
	}, s.cfg.HistoryTTL)
	if err != nil {
		return MarketChart{}, false, err
	}

	var chart MarketChart
	if err := json.Unmarshal(res.Value, &chart); err != nil {
		return MarketChart{}, false, fmt.Errorf("%w: decode market_chart: %v", upstream.ErrMalformedResponse, err)
	}
	return chart, res.Stale, nil
}

// filterMarkets проверяет ответ и оставляет записи со строковыми id, name и symbol.
// Пустой или некорректный ответ - повторяемая ошибка, в кэш он не попадает.
func filterMarkets(raw json.RawMessage) (json.RawMessage, error) {
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: markets response is not an array", upstream.ErrMalformedResponse)
	}

	items := parsed.Array()
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no cryptocurrency data received", upstream.ErrMalformedResponse)
	}

	valid := make([]string, 0, len(items))
	for _, item := range items {
		if item.Get("id").Type == gjson.String &&
			item.Get("name").Type == gjson.String &&
			item.Get("symbol").Type == gjson.String {
			valid = append(valid, item.Raw)
		}
	}

	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: no valid cryptocurrency data received", upstream.ErrMalformedResponse)
	}
	if dropped := len(items) - len(valid); dropped > 0 {
		logger.Debug("🧹 coingecko: отброшено %d некорректных записей", dropped)
	}

	return json.RawMessage("[" + strings.Join(valid, ",") + "]"), nil
}
