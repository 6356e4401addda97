// internal/infrastructure/persistence/in_memory_storage/subscriber.go
package storage

import (
	"sync"
	"time"
)

// AllCoins - подписка на все монеты
const AllCoins = "all"

// Subscriber интерфейс подписчика
type Subscriber interface {
	OnPriceUpdate(id string, price float64, timestamp time.Time)
}

// SubscriberFunc функциональный тип подписчика
type SubscriberFunc func(id string, price float64, timestamp time.Time)

func (f SubscriberFunc) OnPriceUpdate(id string, price float64, timestamp time.Time) {
	f(id, price, timestamp)
}

type subscription struct {
	seq        uint64
	subscriber Subscriber
}

// SubscriptionManager управляет подписками
type SubscriptionManager struct {
	mu          sync.RWMutex
	seq         uint64
	subscribers map[string][]subscription // id или AllCoins -> подписки
}

// NewSubscriptionManager создает нового менеджера подписок
func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		subscribers: make(map[string][]subscription),
	}
}

// Subscribe подписывает на обновления монеты; возвращает функцию отписки
func (sm *SubscriptionManager) Subscribe(id string, subscriber Subscriber) func() {
	sm.mu.Lock()
	sm.seq++
	seq := sm.seq
	sm.subscribers[id] = append(sm.subscribers[id], subscription{seq: seq, subscriber: subscriber})
	sm.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { sm.unsubscribe(id, seq) })
	}
}

func (sm *SubscriptionManager) unsubscribe(id string, seq uint64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	list := sm.subscribers[id]
	for i := range list {
		if list[i].seq == seq {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}

	if len(list) == 0 {
		delete(sm.subscribers, id)
	} else {
		sm.subscribers[id] = list
	}
}

// NotifyAll синхронно уведомляет подписчиков монеты и подписчиков на все монеты
func (sm *SubscriptionManager) NotifyAll(id string, price float64, timestamp time.Time) {
	sm.mu.RLock()
	targets := make([]subscription, 0, len(sm.subscribers[id])+len(sm.subscribers[AllCoins]))
	targets = append(targets, sm.subscribers[id]...)
	if id != AllCoins {
		targets = append(targets, sm.subscribers[AllCoins]...)
	}
	sm.mu.RUnlock()

	for _, s := range targets {
		s.subscriber.OnPriceUpdate(id, price, timestamp)
	}
}

// GetSubscriberCount возвращает количество подписчиков
func (sm *SubscriptionManager) GetSubscriberCount(id string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[id])
}
