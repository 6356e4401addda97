// internal/delivery/statusapi/stream.go
package statusapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	storage "crypto-weather-sync/internal/infrastructure/persistence/in_memory_storage"
	"crypto-weather-sync/pkg/logger"
)

const (
	streamBuffer       = 32
	streamWriteTimeout = 5 * time.Second
)

// PriceEvent - сообщение потока цен
type PriceEvent struct {
	ID        string    `json:"id"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// stream пересылает обновления цен клиенту по websocket.
// Медленный клиент теряет события, а не тормозит ядро.
func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	coin := r.URL.Query().Get("coin")
	if coin == "" {
		coin = storage.AllCoins
	}

	events := make(chan PriceEvent, streamBuffer)
	var dropped int64
	unsubscribe := h.deps.Store.Subscribe(coin, storage.SubscriberFunc(func(id string, price float64, ts time.Time) {
		select {
		case events <- PriceEvent{ID: id, Price: price, Timestamp: ts}:
		default:
			atomic.AddInt64(&dropped, 1)
		}
	}))
	defer unsubscribe()

	// Подписка оформлена до апгрейда: клиент не пропустит события после Dial
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Warn("⚠️ HTTP stream: %v", err)
		return
	}
	defer conn.CloseNow()

	// Клиент ничего не присылает; CloseRead отменяет ctx при закрытии
	ctx := conn.CloseRead(r.Context())
	logger.Debug("📡 HTTP stream: клиент подключен (%s)", coin)

	for {
		select {
		case <-ctx.Done():
			if n := atomic.LoadInt64(&dropped); n > 0 {
				logger.Debug("📡 HTTP stream: клиент отключен, пропущено %d событий", n)
			}
			return
		case ev := <-events:
			writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				logger.Debug("📡 HTTP stream: ошибка записи: %v", err)
				return
			}
		}
	}
}
