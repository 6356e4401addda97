// internal/types/snapshot.go
package types

import "time"

// PriceSnapshot - мгновенное значение цены монеты
type PriceSnapshot struct {
	ID    string  `json:"id"`
	Name  string  `json:"name,omitempty"`
	Price float64 `json:"price"`
}

// DisplayName возвращает человекочитаемое имя монеты
func (p PriceSnapshot) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// WeatherSnapshot - мгновенное значение погоды в городе
type WeatherSnapshot struct {
	City        string    `json:"city"`
	Temperature float64   `json:"temperature"`
	Condition   string    `json:"condition"`
	Description string    `json:"description,omitempty"`
	Humidity    float64   `json:"humidity,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
}
