// application/services/orchestrator/teardown.go
package orchestrator

import (
	"sync"

	"crypto-weather-sync/pkg/logger"
)

// Teardown - единственный способ остановить оркестратор
type Teardown struct {
	orchestrator *SyncOrchestrator
}

// Disconnect останавливает push-канал и опрос погоды. Повторный вызов безопасен.
func (t *Teardown) Disconnect() {
	if t == nil || t.orchestrator == nil {
		return
	}
	logger.Info("🛑 SyncOrchestrator: остановка")
	t.orchestrator.manager.Disconnect()
	t.orchestrator.poller.Stop()
}

// ViewLease - регистрация представления.
// Release освобождает только регистрацию; соединение переживает представления.
type ViewLease struct {
	orchestrator *SyncOrchestrator
	once         sync.Once
}

// Release отменяет регистрацию; повторный вызов ничего не делает
func (l *ViewLease) Release() {
	l.once.Do(l.orchestrator.release)
}
