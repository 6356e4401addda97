package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"crypto-weather-sync/internal/infrastructure/api/openweather"
	"crypto-weather-sync/internal/infrastructure/api/upstream"
	"crypto-weather-sync/internal/infrastructure/config"
	"crypto-weather-sync/internal/infrastructure/transport/push"
	"crypto-weather-sync/internal/types"
)

type recordingSink struct {
	mu        sync.Mutex
	prices    map[string]float64
	weather   map[string]types.WeatherSnapshot
	notes     []string
	severity  []types.Severity
	terminals []string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{prices: make(map[string]float64), weather: make(map[string]types.WeatherSnapshot)}
}

func (s *recordingSink) OnPriceUpdate(id string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[id] = price
}

func (s *recordingSink) OnWeatherUpdate(city string, snapshot types.WeatherSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weather[city] = snapshot
}

func (s *recordingSink) OnNotify(message string, severity types.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, message)
	s.severity = append(s.severity, severity)
}

func (s *recordingSink) OnTerminalFailure(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminals = append(s.terminals, reason)
}

func (s *recordingSink) price(id string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[id]
	return p, ok
}

func (s *recordingSink) notifications() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes...)
}

type fakePrices struct {
	mu    sync.Mutex
	price float64
	stale bool
	err   error
	calls int
}

func (f *fakePrices) Prices(_ context.Context, ids []string) ([]types.PriceSnapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	out := make([]types.PriceSnapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.PriceSnapshot{ID: id, Name: id, Price: f.price})
	}
	return out, f.stale, nil
}

func (f *fakePrices) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeWeather struct {
	temp atomic.Int64

	mu   sync.Mutex
	fail map[string]error
}

func (f *fakeWeather) failCity(city string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = make(map[string]error)
	}
	f.fail[city] = err
}

func (f *fakeWeather) Current(_ context.Context, city string) (types.WeatherSnapshot, bool, error) {
	f.mu.Lock()
	err := f.fail[city]
	f.mu.Unlock()
	if err != nil {
		return types.WeatherSnapshot{}, false, err
	}
	return types.WeatherSnapshot{City: city, Temperature: float64(f.temp.Load()), Condition: "Clear"}, false, nil
}

type fakeConn struct {
	id     int
	events chan push.Event
}

func (c *fakeConn) ID() string                { return fmt.Sprintf("conn-%d", c.id) }
func (c *fakeConn) Events() <-chan push.Event { return c.events }
func (c *fakeConn) Close() error              { return nil }

type fakeChannel struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (f *fakeChannel) Open(context.Context, string) (push.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeConn{id: len(f.conns) + 1, events: make(chan push.Event, 16)}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeChannel) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[len(f.conns)-1]
}

type fixture struct {
	orch     *SyncOrchestrator
	teardown *Teardown
	sink     *recordingSink
	prices   *fakePrices
	weather  *fakeWeather
	channel  *fakeChannel
	clock    *clocktesting.FakeClock
}

func newFixture(t *testing.T, maxAttempts int) *fixture {
	t.Helper()
	syncCfg := config.DefaultSyncConfig()
	syncCfg.MaxReconnectAttempts = maxAttempts

	f := &fixture{
		sink:    newRecordingSink(),
		prices:  &fakePrices{price: 100},
		weather: &fakeWeather{},
		channel: &fakeChannel{},
		clock:   clocktesting.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	f.weather.temp.Store(10)

	f.orch, f.teardown = New(Settings{
		Sync:         syncCfg,
		PushURL:      "wss://example.test/prices",
		TrackedCoins: []string{"bitcoin", "ethereum"},
	}, Deps{
		Prices:    f.prices,
		Weather:   f.weather,
		Favorites: types.StaticFavorites{"London"},
		Channel:   f.channel,
		Sink:      f.sink,
		Clock:     f.clock,
	})
	t.Cleanup(f.teardown.Disconnect)
	return f
}

func TestConnectRefreshesPricesAndPollsWeather(t *testing.T) {
	f := newFixture(t, 5)

	f.orch.Connect()
	f.orch.Connect()

	require.Eventually(t, func() bool {
		_, ok := f.sink.price("ethereum")
		return ok
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		_, ok := f.sink.weather["London"]
		return ok
	}, time.Second, time.Millisecond)

	assert.Equal(t, 1, f.channel.count())
	assert.Equal(t, 1, f.prices.callCount())
	assert.True(t, f.orch.Status().PollerRunning)
}

func TestPushPricesFlowIntoSinkAndNotifier(t *testing.T) {
	f := newFixture(t, 5)
	f.orch.Connect()
	require.Eventually(t, func() bool { return f.prices.callCount() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := f.sink.price("bitcoin")
		return ok
	}, time.Second, time.Millisecond)

	conn := f.channel.last()
	conn.events <- push.Event{Type: push.EventOpen}
	conn.events <- push.Event{Type: push.EventMessage, Data: []byte(`{"bitcoin":"102.5"}`)}

	require.Eventually(t, func() bool {
		p, _ := f.sink.price("bitcoin")
		return p == 102.5
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(f.sink.notifications()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "bitcoin price increased by 2.50%", f.sink.notifications()[0])
}

func TestRefreshFailureNotifiesSink(t *testing.T) {
	f := newFixture(t, 5)
	f.prices.err = errors.New("rate limited")

	err := f.orch.RefreshPrices(context.Background())
	require.Error(t, err)

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.Len(t, f.sink.notes, 1)
	assert.Equal(t, "Failed to fetch crypto prices", f.sink.notes[0])
	assert.Equal(t, types.SeverityError, f.sink.severity[0])
}

func TestStaleRefreshKeepsFresherPushPrices(t *testing.T) {
	f := newFixture(t, 5)

	f.orch.handlePrices([]types.PriceSnapshot{{ID: "bitcoin", Price: 50000}})
	f.orch.handlePrices([]types.PriceSnapshot{{ID: "bitcoin", Price: 50600}})
	require.Len(t, f.sink.notifications(), 1)

	f.prices.mu.Lock()
	f.prices.price = 50000
	f.prices.stale = true
	f.prices.mu.Unlock()

	require.NoError(t, f.orch.RefreshPrices(context.Background()))

	p, _ := f.sink.price("bitcoin")
	assert.Equal(t, 50600.0, p)
	eth, ok := f.sink.price("ethereum")
	require.True(t, ok)
	assert.Equal(t, 50000.0, eth)

	f.orch.handlePrices([]types.PriceSnapshot{{ID: "bitcoin", Price: 50600}})
	assert.Len(t, f.sink.notifications(), 1)
}

func TestWeatherFailureNotifiesSink(t *testing.T) {
	f := newFixture(t, 5)
	f.weather.failCity("London", errors.New("upstream returned status 503"))

	report := f.orch.PollWeather(context.Background())
	assert.Equal(t, 1, report.Failed)

	f.sink.mu.Lock()
	require.Len(t, f.sink.notes, 1)
	assert.Equal(t, "Failed to fetch weather for London", f.sink.notes[0])
	assert.Equal(t, types.SeverityError, f.sink.severity[0])
	f.sink.mu.Unlock()

	f.weather.failCity("London", upstream.Permanent(fmt.Errorf("openweather %q: %w", "London", openweather.ErrCityNotFound)))
	f.orch.PollWeather(context.Background())
	assert.Len(t, f.sink.notifications(), 1)
}

func TestWeatherChangeNotifies(t *testing.T) {
	f := newFixture(t, 5)

	f.orch.PollWeather(context.Background())
	f.weather.temp.Store(16)
	report := f.orch.PollWeather(context.Background())

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, []string{"Temperature in London changed by 6.0°C"}, f.sink.notifications())
}

func TestViewReleaseKeepsConnection(t *testing.T) {
	f := newFixture(t, 5)

	lease := f.orch.Attach()
	second := f.orch.Attach()
	assert.Equal(t, 2, f.orch.Status().Views)
	assert.Equal(t, 1, f.channel.count())

	lease.Release()
	lease.Release()
	second.Release()

	status := f.orch.Status()
	assert.Equal(t, 0, status.Views)
	assert.Equal(t, push.StateConnecting.String(), status.Push.State)
	assert.True(t, status.PollerRunning)

	f.teardown.Disconnect()
	status = f.orch.Status()
	assert.Equal(t, push.StateIdle.String(), status.Push.State)
	assert.False(t, status.PollerRunning)

	f.teardown.Disconnect()
}

func TestTerminalFailureReachesSink(t *testing.T) {
	f := newFixture(t, 1)
	f.orch.Connect()

	f.channel.last().events <- push.Event{Type: push.EventError}
	require.Eventually(t, func() bool { return f.orch.Status().Push.Attempt == 1 }, time.Second, time.Millisecond)

	f.clock.Step(5 * time.Second)
	require.Eventually(t, func() bool { return f.channel.count() == 2 }, time.Second, time.Millisecond)

	f.channel.last().events <- push.Event{Type: push.EventClose}
	require.Eventually(t, func() bool {
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		return len(f.sink.terminals) == 1
	}, time.Second, time.Millisecond)
}

func TestLazyBuildsOnce(t *testing.T) {
	var builds atomic.Int32
	lazy := NewLazy(func() (*SyncOrchestrator, *Teardown) {
		builds.Add(1)
		return New(Settings{Sync: config.DefaultSyncConfig()}, Deps{
			Channel:   &fakeChannel{},
			Favorites: types.StaticFavorites{},
			Clock:     clocktesting.NewFakeClock(time.Now()),
		})
	})

	var wg sync.WaitGroup
	results := make([]*SyncOrchestrator, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = lazy.Get()
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.EqualValues(t, 1, builds.Load())
	require.NotNil(t, lazy.Teardown())
	lazy.Teardown().Disconnect()
}
