package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"crypto-weather-sync/internal/types"
)

func TestSnapshotStorePrices(t *testing.T) {
	fc := clocktesting.NewFakePassiveClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewSnapshotStore(WithMaxHistoryPerCoin(2), WithClock(fc))

	s.OnPriceUpdate("bitcoin", 100)
	fc.SetTime(fc.Now().Add(time.Second))
	s.OnPriceUpdate("bitcoin", 101)
	s.OnPriceUpdate("bitcoin", 102)

	coin, err := s.GetCoin("bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 102.0, coin.Price)
	require.Len(t, coin.History, 2)
	assert.Equal(t, 101.0, coin.History[0].Price)

	_, err = s.GetCoin("dogecoin")
	assert.ErrorIs(t, err, ErrCoinNotFound)

	assert.Equal(t, map[string]float64{"bitcoin": 102}, s.GetAllPrices())
	assert.EqualValues(t, 3, s.GetStats().PriceUpdates)
}

func TestSnapshotStoreNotificationsAreBounded(t *testing.T) {
	s := NewSnapshotStore(WithMaxNotifications(3))

	for _, msg := range []string{"a", "b", "c", "d"} {
		s.OnNotify(msg, types.SeverityInfo)
	}

	recent := s.RecentNotifications(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "d", recent[0].Message)
	assert.Equal(t, "b", recent[2].Message)
	_, err := uuid.Parse(recent[0].ID)
	assert.NoError(t, err)

	assert.Len(t, s.RecentNotifications(1), 1)
}

func TestSnapshotStoreWeatherAndTerminal(t *testing.T) {
	s := NewSnapshotStore()

	s.OnWeatherUpdate("Paris", types.WeatherSnapshot{City: "Paris", Temperature: 20})
	s.OnWeatherUpdate("London", types.WeatherSnapshot{City: "London", Temperature: 12})

	w, err := s.GetWeather("Paris")
	require.NoError(t, err)
	assert.Equal(t, 20.0, w.Temperature)
	_, err = s.GetWeather("Rome")
	assert.ErrorIs(t, err, ErrCityNotFound)

	all := s.GetAllWeather()
	require.Len(t, all, 2)
	assert.Equal(t, "London", all[0].City)

	_, failed := s.TerminalFailure()
	assert.False(t, failed)

	s.OnTerminalFailure("stream down")
	reason, failed := s.TerminalFailure()
	assert.True(t, failed)
	assert.Equal(t, "stream down", reason)
	assert.Equal(t, types.SeverityError, s.RecentNotifications(1)[0].Severity)
}

func TestSnapshotStoreSubscribers(t *testing.T) {
	s := NewSnapshotStore()

	var btc, all []string
	unsubscribe := s.Subscribe("bitcoin", SubscriberFunc(func(id string, price float64, _ time.Time) {
		btc = append(btc, id)
	}))
	s.Subscribe(AllCoins, SubscriberFunc(func(id string, price float64, _ time.Time) {
		all = append(all, id)
	}))

	s.OnPriceUpdate("bitcoin", 1)
	s.OnPriceUpdate("ethereum", 2)
	unsubscribe()
	unsubscribe()
	s.OnPriceUpdate("bitcoin", 3)

	assert.Equal(t, []string{"bitcoin"}, btc)
	assert.Equal(t, []string{"bitcoin", "ethereum", "bitcoin"}, all)
	assert.Equal(t, 0, s.subs.GetSubscriberCount("bitcoin"))
	assert.Equal(t, 1, s.subs.GetSubscriberCount(AllCoins))
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := NewSnapshotStore(), NewSnapshotStore()
	sink := types.MultiSink{a, b, LogSink{}}

	sink.OnPriceUpdate("bitcoin", 5)
	sink.OnNotify("hello", types.SeverityWarning)

	assert.Equal(t, 5.0, a.GetAllPrices()["bitcoin"])
	assert.Equal(t, 5.0, b.GetAllPrices()["bitcoin"])
	assert.Len(t, b.RecentNotifications(0), 1)
}
