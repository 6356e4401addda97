// internal/infrastructure/transport/push/manager.go
package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"crypto-weather-sync/internal/infrastructure/metrics"
	"crypto-weather-sync/internal/types"
	"crypto-weather-sync/pkg/logger"
)

// State - состояние push-соединения
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

var stateNames = []string{"idle", "connecting", "open", "closed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Refresher - внеочередная REST-загрузка при каждом (пере)подключении
type Refresher func(ctx context.Context) error

// PriceHandler получает цены из сообщений канала
type PriceHandler func(prices []types.PriceSnapshot)

// TerminalHandler вызывается один раз, когда переподключения исчерпаны
type TerminalHandler func(reason string)

// Config - параметры менеджера
type Config struct {
	URL            string
	BaseDelay      time.Duration
	MaxAttempts    int
	RefreshTimeout time.Duration
}

// DefaultConfig - 5 попыток, задержка 5s × номер попытки
func DefaultConfig() Config {
	return Config{
		URL:            DefaultURL,
		BaseDelay:      5 * time.Second,
		MaxAttempts:    5,
		RefreshTimeout: 30 * time.Second,
	}
}

// Options - зависимости менеджера
type Options struct {
	Channel    Channel
	Clock      clock.WithDelayedExecution
	Refresh    Refresher
	OnPrices   PriceHandler
	OnTerminal TerminalHandler
	Metrics    *metrics.Metrics
}

// Status - снимок состояния для статуса сервиса
type Status struct {
	State       string        `json:"state"`
	Attempt     int           `json:"attempt"`
	NextDelay   time.Duration `json:"-"`
	NextDelayMs int64         `json:"next_delay_ms"`
	ConnID      string        `json:"conn_id,omitempty"`
	Exhausted   bool          `json:"exhausted"`
}

// Manager держит одно push-соединение и переподключает его с линейной задержкой.
// Idle → Connecting → Open → Closed → Connecting ...; Idle снова только через Disconnect.
type Manager struct {
	cfg        Config
	channel    Channel
	clock      clock.WithDelayedExecution
	refresh    Refresher
	onPrices   PriceHandler
	onTerminal TerminalHandler
	metrics    *metrics.Metrics
	baseCtx    context.Context

	mu               sync.Mutex
	state            State
	backoff          BackoffState
	conn             Conn
	generation       uint64
	timer            clock.Timer
	timerSeq         uint64
	exhausted        bool
	terminalReported bool
}

// NewManager создает менеджер в состоянии Idle
func NewManager(cfg Config, opts Options) *Manager {
	defaults := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = defaults.URL
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaults.BaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaults.RefreshTimeout
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	m := &Manager{
		cfg:        cfg,
		channel:    opts.Channel,
		clock:      clk,
		refresh:    opts.Refresh,
		onPrices:   opts.OnPrices,
		onTerminal: opts.OnTerminal,
		metrics:    opts.Metrics,
		baseCtx:    context.Background(),
		state:      StateIdle,
	}
	m.metrics.PushState(m.state.String(), stateNames)
	return m
}

// Connect открывает канал и запускает внеочередную REST-загрузку.
// В состояниях Connecting/Open и после исчерпания попыток ничего не делает.
func (m *Manager) Connect() {
	m.mu.Lock()
	switch {
	case m.state == StateConnecting || m.state == StateOpen:
		m.mu.Unlock()
		logger.Debug("🔌 push: уже %s, Connect пропущен", m.state)
		return
	case m.exhausted:
		m.mu.Unlock()
		logger.Warn("⚠️ push: попытки переподключения исчерпаны, нужен Disconnect")
		return
	}

	m.stopTimerLocked()
	terminal := m.openLocked()
	m.mu.Unlock()

	if terminal {
		m.reportTerminal()
	}
}

// Disconnect отменяет таймер, закрывает канал и возвращает менеджер в Idle
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopTimerLocked()
	conn := m.conn
	m.conn = nil
	m.generation++
	m.backoff = BackoffState{}
	m.exhausted = false
	m.terminalReported = false
	m.setStateLocked(StateIdle)
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Debug("push[%s]: close: %v", conn.ID(), err)
		}
	}
	logger.Info("🛑 push: отключено")
}

// State возвращает текущее состояние
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Backoff возвращает копию счетчика переподключений
func (m *Manager) Backoff() BackoffState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backoff
}

// Status возвращает снимок состояния
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:       m.state.String(),
		Attempt:     m.backoff.Attempt,
		NextDelay:   m.backoff.NextDelay,
		NextDelayMs: m.backoff.NextDelay.Milliseconds(),
		Exhausted:   m.exhausted,
	}
	if m.conn != nil {
		st.ConnID = m.conn.ID()
	}
	return st
}

// openLocked открывает новый экземпляр канала. Возвращает true, если
// ошибка открытия исчерпала попытки и нужно сообщить о терминальном сбое.
func (m *Manager) openLocked() bool {
	m.generation++
	gen := m.generation
	m.setStateLocked(StateConnecting)

	conn, err := m.channel.Open(m.baseCtx, m.cfg.URL)
	if err != nil {
		logger.Warn("⚠️ push: не удалось открыть канал: %v", err)
		m.conn = nil
		m.setStateLocked(StateClosed)
		return m.reconnectLocked()
	}

	m.conn = conn
	logger.Info("🔌 push[%s]: подключение к %s", conn.ID(), m.cfg.URL)

	go m.consume(conn, gen)
	go m.runRefresh()
	return false
}

// consume обрабатывает события одного экземпляра строго последовательно
func (m *Manager) consume(conn Conn, gen uint64) {
	failed := false
	for ev := range conn.Events() {
		if !m.isCurrent(gen) {
			logger.Debug("push[%s]: событие %s устаревшего соединения пропущено", conn.ID(), ev.Type)
			continue
		}

		switch ev.Type {
		case EventOpen:
			m.onOpen(conn, gen)
		case EventMessage:
			m.onMessage(conn, ev.Data)
		case EventError, EventClose:
			// Пара error+close одного экземпляра дает одно переподключение
			if failed {
				continue
			}
			failed = true
			m.onFailure(conn, gen, ev)
		}
	}

	if !failed {
		m.onFailure(conn, gen, Event{Type: EventClose})
	}
}

func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.generation
}

func (m *Manager) onOpen(conn Conn, gen uint64) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateOpen)
	m.backoff = BackoffState{}
	m.stopTimerLocked()
	m.mu.Unlock()

	logger.Info("✅ push[%s]: канал открыт", conn.ID())
}

func (m *Manager) onMessage(conn Conn, data []byte) {
	prices, err := DecodePrices(data)
	if err != nil {
		m.metrics.PushMessage("malformed")
		logger.Warn("⚠️ push[%s]: сообщение отброшено: %v", conn.ID(), err)
		return
	}

	m.metrics.PushMessage("ok")
	if m.onPrices != nil {
		m.onPrices(prices)
	}
}

func (m *Manager) onFailure(conn Conn, gen uint64, ev Event) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.setStateLocked(StateClosed)
	terminal := m.reconnectLocked()
	m.mu.Unlock()

	if ev.Err != nil {
		logger.Warn("⚠️ push[%s]: %s: %v", conn.ID(), ev.Type, ev.Err)
	} else {
		logger.Warn("⚠️ push[%s]: канал закрыт", conn.ID())
	}

	if err := conn.Close(); err != nil {
		logger.Debug("push[%s]: close: %v", conn.ID(), err)
	}

	if terminal {
		m.reportTerminal()
	}
}

// reconnectLocked планирует одну попытку через BaseDelay × Attempt.
// Возвращает true ровно один раз, когда попытки исчерпаны.
func (m *Manager) reconnectLocked() bool {
	if m.backoff.Attempt >= m.cfg.MaxAttempts {
		m.stopTimerLocked()
		m.exhausted = true
		if m.terminalReported {
			return false
		}
		m.terminalReported = true
		logger.Error("❌ push: исчерпано %d попыток переподключения", m.cfg.MaxAttempts)
		return true
	}

	m.backoff.Attempt++
	delay := LinearDelay(m.cfg.BaseDelay, m.backoff.Attempt)
	m.backoff.NextDelay = delay

	m.stopTimerLocked()
	seq := m.timerSeq
	m.timer = m.clock.AfterFunc(delay, func() { m.onTimer(seq) })
	m.metrics.PushReconnect()

	logger.Info("🔄 push: переподключение %d/%d через %v", m.backoff.Attempt, m.cfg.MaxAttempts, delay)
	return false
}

// onTimer выполняет запланированное переподключение, если таймер не заменен
func (m *Manager) onTimer(seq uint64) {
	m.mu.Lock()
	if seq != m.timerSeq || m.timer == nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	if m.state != StateClosed {
		m.mu.Unlock()
		return
	}
	terminal := m.openLocked()
	m.mu.Unlock()

	if terminal {
		m.reportTerminal()
	}
}

// stopTimerLocked отменяет ожидающий таймер; повторный вызов безопасен
func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	m.metrics.PushState(s.String(), stateNames)
}

func (m *Manager) runRefresh() {
	if m.refresh == nil {
		return
	}

	ctx, cancel := context.WithTimeout(m.baseCtx, m.cfg.RefreshTimeout)
	defer cancel()

	if err := m.refresh(ctx); err != nil {
		logger.Warn("⚠️ push: внеочередная загрузка цен не удалась: %v", err)
	}
}

func (m *Manager) reportTerminal() {
	reason := fmt.Sprintf("price stream unavailable after %d reconnect attempts", m.cfg.MaxAttempts)
	if m.onTerminal != nil {
		m.onTerminal(reason)
	}
}
