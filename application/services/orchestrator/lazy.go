// application/services/orchestrator/lazy.go
package orchestrator

import "sync"

// Lazy создает оркестратор при первом обращении и больше никогда.
// Владелец Lazy (верхний уровень сборки) - единственный держатель Teardown.
type Lazy struct {
	once     sync.Once
	build    func() (*SyncOrchestrator, *Teardown)
	instance *SyncOrchestrator
	teardown *Teardown
}

// NewLazy запоминает функцию сборки
func NewLazy(build func() (*SyncOrchestrator, *Teardown)) *Lazy {
	return &Lazy{build: build}
}

// Get возвращает единственный экземпляр
func (l *Lazy) Get() *SyncOrchestrator {
	l.once.Do(func() {
		l.instance, l.teardown = l.build()
	})
	return l.instance
}

// Teardown возвращает ручку остановки, создавая экземпляр при необходимости
func (l *Lazy) Teardown() *Teardown {
	l.Get()
	return l.teardown
}
