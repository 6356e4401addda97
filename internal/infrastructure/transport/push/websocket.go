// internal/infrastructure/transport/push/websocket.go
package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"crypto-weather-sync/pkg/logger"
)

const (
	DefaultURL         = "wss://ws.coincap.io/prices?assets=bitcoin,ethereum"
	defaultDialTimeout = 10 * time.Second
	defaultReadLimit   = 1 << 20
)

// WebSocketChannel - Channel поверх coder/websocket
type WebSocketChannel struct {
	DialTimeout time.Duration
	ReadLimit   int64
}

// NewWebSocketChannel создает канал
func NewWebSocketChannel(dialTimeout time.Duration) *WebSocketChannel {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	return &WebSocketChannel{DialTimeout: dialTimeout, ReadLimit: defaultReadLimit}
}

// Open запускает подключение в отдельной горутине и сразу возвращает экземпляр
func (c *WebSocketChannel) Open(ctx context.Context, url string) (Conn, error) {
	if url == "" {
		return nil, errors.New("push url is empty")
	}

	connCtx, cancel := context.WithCancel(ctx)
	wc := &wsConn{
		id:     uuid.NewString(),
		events: make(chan Event, 16),
		ctx:    connCtx,
		cancel: cancel,
	}

	go wc.run(url, c.DialTimeout, c.ReadLimit)
	return wc, nil
}

// wsConn - экземпляр websocket-соединения
type wsConn struct {
	id     string
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) ID() string           { return w.id }
func (w *wsConn) Events() <-chan Event { return w.events }

// Close закрывает соединение; повторный вызов безопасен
func (w *wsConn) Close() error {
	w.cancel()

	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "client disconnect")
}

// run устанавливает соединение и читает сообщения до ошибки или Close
func (w *wsConn) run(url string, dialTimeout time.Duration, readLimit int64) {
	defer close(w.events)

	dialCtx, cancelDial := context.WithTimeout(w.ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	cancelDial()
	if err != nil {
		w.events <- Event{Type: EventError, Err: fmt.Errorf("ошибка подключения: %w", err)}
		w.events <- Event{Type: EventClose}
		return
	}
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}

	w.mu.Lock()
	if w.ctx.Err() != nil {
		// Close вызван во время установки соединения
		w.mu.Unlock()
		conn.CloseNow()
		w.events <- Event{Type: EventClose}
		return
	}
	w.conn = conn
	w.mu.Unlock()

	logger.Debug("🔌 push[%s]: соединение установлено (%s)", w.id[:8], url)
	w.events <- Event{Type: EventOpen}

	// Читаем сырые кадры: некорректный JSON не должен рвать соединение
	for {
		_, data, err := conn.Read(w.ctx)
		if err != nil {
			if w.ctx.Err() == nil {
				w.events <- Event{Type: EventError, Err: fmt.Errorf("ошибка чтения: %w", err)}
			}
			w.events <- Event{Type: EventClose, Err: err}
			w.closeNow()
			return
		}
		w.events <- Event{Type: EventMessage, Data: data}
	}
}

func (w *wsConn) closeNow() {
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	if conn != nil {
		conn.CloseNow()
	}
}
