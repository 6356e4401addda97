// internal/infrastructure/cache/upstreamcache/cache.go
package upstreamcache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"crypto-weather-sync/internal/infrastructure/api/upstream"
	"crypto-weather-sync/internal/infrastructure/metrics"
	"crypto-weather-sync/pkg/logger"
)

// Entry - последнее успешно полученное значение по ключу.
// Запись заменяется целиком и никогда не удаляется: просроченная запись
// остается запасным значением.
type Entry struct {
	Value     json.RawMessage `json:"value"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Result - ответ кэша
type Result struct {
	Value     json.RawMessage
	FetchedAt time.Time
	// Stale - свежий запрос не удался, отдано прошлое значение
	Stale bool
	// Cached - значение отдано без обращения к апстриму
	Cached bool
}

// FetchFunc - идемпотентный запрос к апстриму
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// EntryStore - внешнее зеркало записей (Redis), переживающее рестарт процесса
type EntryStore interface {
	LoadEntry(ctx context.Context, key string) (Entry, bool, error)
	SaveEntry(ctx context.Context, key string, entry Entry) error
}

// Options - зависимости кэша
type Options struct {
	Name    string
	Retry   RetryPolicy
	Clock   clock.Clock
	Store   EntryStore
	Metrics *metrics.Metrics
	// Wait переопределяет ожидание между попытками (по умолчанию таймер Clock)
	Wait WaitFunc
}

// Cache - кэш с временем жизни перед любым REST-вызовом
type Cache struct {
	name    string
	mu      sync.RWMutex
	entries map[string]Entry

	retry   RetryPolicy
	clock   clock.Clock
	store   EntryStore
	metrics *metrics.Metrics
	wait    WaitFunc
	group   singleflight.Group
}

// New создает кэш
func New(opts Options) *Cache {
	c := &Cache{
		name:    opts.Name,
		entries: make(map[string]Entry),
		retry:   opts.Retry,
		clock:   opts.Clock,
		store:   opts.Store,
		metrics: opts.Metrics,
		wait:    opts.Wait,
	}

	if c.name == "" {
		c.name = "upstream"
	}
	if c.retry.Attempts <= 0 {
		c.retry = DefaultRetryPolicy()
	}
	if c.clock == nil {
		c.clock = clock.RealClock{}
	}
	if c.wait == nil {
		c.wait = c.sleep
	}

	return c
}

// Get возвращает значение по ключу.
// Живая запись (now − FetchedAt < ttl) отдается без сетевого вызова.
// Иначе вызывается fetch через повторы; при неудаче отдается прошлая запись
// с флагом Stale, а при ее отсутствии - ошибка.
func (c *Cache) Get(ctx context.Context, key string, fetch FetchFunc, ttl time.Duration) (Result, error) {
	prior, found := c.lookup(ctx, key)
	if found && c.clock.Since(prior.FetchedAt) < ttl {
		c.metrics.CacheRequest(metrics.CacheHit)
		logger.Debug("📦 %s[%s]: отдаем из кэша", c.name, key)
		return Result{Value: prior.Value, FetchedAt: prior.FetchedAt, Cached: true}, nil
	}

	c.metrics.CacheRequest(metrics.CacheMiss)

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		return c.refresh(ctx, key, fetch)
	})
	if err == nil {
		entry := v.(Entry)
		if shared {
			logger.Debug("📦 %s[%s]: результат разделен с параллельным запросом", c.name, key)
		}
		return Result{Value: entry.Value, FetchedAt: entry.FetchedAt}, nil
	}

	// Окончательный отказ не маскируется старыми данными
	if upstream.IsPermanent(err) {
		c.metrics.CacheRequest(metrics.CacheError)
		return Result{}, err
	}

	// Запись могла появиться, пока шел наш запрос
	if latest, ok := c.Peek(key); ok {
		prior, found = latest, true
	}
	if found {
		c.metrics.CacheRequest(metrics.CacheStale)
		logger.Warn("⚠️ %s[%s]: апстрим недоступен (%v), отдаем данные от %s",
			c.name, key, err, prior.FetchedAt.Format(time.RFC3339))
		return Result{Value: prior.Value, FetchedAt: prior.FetchedAt, Stale: true}, nil
	}

	c.metrics.CacheRequest(metrics.CacheError)
	return Result{}, err
}

// refresh запрашивает апстрим и заменяет запись целиком
func (c *Cache) refresh(ctx context.Context, key string, fetch FetchFunc) (Entry, error) {
	value, err := c.retry.do(ctx, c.name+"["+key+"]", fetch, c.wait, c.metrics.UpstreamRetry)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{Value: value, FetchedAt: c.clock.Now()}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveEntry(ctx, c.mirrorKey(key), entry); err != nil {
			logger.Warn("⚠️ %s[%s]: не удалось сохранить зеркало записи: %v", c.name, key, err)
		}
	}

	return entry, nil
}

// mirrorKey разделяет ключи разных кэшей в общем зеркале
func (c *Cache) mirrorKey(key string) string {
	return c.name + ":" + key
}

// lookup ищет запись в памяти, затем в зеркале
func (c *Cache) lookup(ctx context.Context, key string) (Entry, bool) {
	if entry, ok := c.Peek(key); ok {
		return entry, true
	}
	if c.store == nil {
		return Entry{}, false
	}

	entry, ok, err := c.store.LoadEntry(ctx, c.mirrorKey(key))
	if err != nil {
		logger.Warn("⚠️ %s[%s]: ошибка чтения зеркала: %v", c.name, key, err)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}

	c.mu.Lock()
	// Не затираем более свежую запись, сохраненную параллельно
	if current, exists := c.entries[key]; exists && current.FetchedAt.After(entry.FetchedAt) {
		entry = current
	} else {
		c.entries[key] = entry
	}
	c.mu.Unlock()

	return entry, true
}

// Peek возвращает запись из памяти без проверки срока жизни
func (c *Cache) Peek(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// Len возвращает количество ключей в памяти
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// sleep ждет d по часам кэша или до отмены контекста
func (c *Cache) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
