// internal/types/notification.go
package types

// Severity - важность уведомления для пользователя
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// NotificationKind - вид значимого изменения
type NotificationKind string

const (
	KindPriceIncrease    NotificationKind = "price_increase"
	KindPriceDecrease    NotificationKind = "price_decrease"
	KindTemperatureShift NotificationKind = "temperature_change"
	KindConditionChange  NotificationKind = "condition_change"
)

// Notification - результат сравнения двух снапшотов
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Subject   string           `json:"subject"`
	Message   string           `json:"message"`
	Severity  Severity         `json:"severity"`
	Magnitude float64          `json:"magnitude"`
}

// Direction возвращает направление для логов: up, down или weather
func (n Notification) Direction() string {
	switch n.Kind {
	case KindPriceIncrease:
		return "up"
	case KindPriceDecrease:
		return "down"
	default:
		return "weather"
	}
}
