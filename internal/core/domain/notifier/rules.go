// internal/core/domain/notifier/rules.go
package notifier

import (
	"fmt"
	"math"

	"crypto-weather-sync/internal/types"
)

// Thresholds - пороги значимых изменений
type Thresholds struct {
	PricePct float64 // % изменения цены, включительно
	TempC    float64 // °C изменения температуры, включительно
}

// DefaultThresholds - 1% для цены и 5°C для температуры
func DefaultThresholds() Thresholds {
	return Thresholds{PricePct: 1.0, TempC: 5.0}
}

// EvaluatePrice сравнивает цену с предыдущей.
// |pct| ≥ thresholdPct дает уведомление; нулевая предыдущая цена не сравнивается.
func EvaluatePrice(prev, cur types.PriceSnapshot, thresholdPct float64) (types.Notification, bool) {
	if prev.Price == 0 {
		return types.Notification{}, false
	}

	pct := (cur.Price - prev.Price) / prev.Price * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) || math.Abs(pct) < thresholdPct {
		return types.Notification{}, false
	}

	kind, verb := types.KindPriceIncrease, "increased"
	if pct < 0 {
		kind, verb = types.KindPriceDecrease, "decreased"
	}
	magnitude := round(math.Abs(pct), 2)

	return types.Notification{
		Kind:      kind,
		Subject:   cur.ID,
		Message:   fmt.Sprintf("%s price %s by %.2f%%", cur.DisplayName(), verb, magnitude),
		Severity:  types.SeverityInfo,
		Magnitude: magnitude,
	}, true
}

// EvaluateWeather сравнивает погоду с предыдущей: температура и состояние
// проверяются независимо, результат - от 0 до 2 уведомлений.
func EvaluateWeather(prev, cur types.WeatherSnapshot, thresholdC float64) []types.Notification {
	var out []types.Notification

	delta := math.Abs(cur.Temperature - prev.Temperature)
	if delta >= thresholdC {
		magnitude := round(delta, 1)
		out = append(out, types.Notification{
			Kind:      types.KindTemperatureShift,
			Subject:   cur.City,
			Message:   fmt.Sprintf("Temperature in %s changed by %.1f°C", cur.City, magnitude),
			Severity:  types.SeverityInfo,
			Magnitude: magnitude,
		})
	}

	if cur.Condition != prev.Condition {
		out = append(out, types.Notification{
			Kind:     types.KindConditionChange,
			Subject:  cur.City,
			Message:  fmt.Sprintf("Weather in %s changed to %s", cur.City, cur.Condition),
			Severity: types.SeverityInfo,
		})
	}

	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
