// internal/infrastructure/transport/push/channel.go
package push

import "context"

// EventType - закрытый набор событий канала
type EventType int

const (
	EventOpen EventType = iota
	EventMessage
	EventError
	EventClose
)

func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event - событие экземпляра канала
type Event struct {
	Type EventType
	Data []byte
	Err  error
}

// Conn - один экземпляр push-соединения.
// Events закрывается после последнего события экземпляра.
type Conn interface {
	ID() string
	Events() <-chan Event
	Close() error
}

// Channel открывает push-соединения.
// Open не блокируется на установке соединения: результат приходит событиями
// EventOpen либо EventError/EventClose.
type Channel interface {
	Open(ctx context.Context, url string) (Conn, error)
}
