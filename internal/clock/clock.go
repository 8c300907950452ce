package clock

import (
	"sync"
	"time"
)

// Clock источник текущего времени для движка
type Clock interface {
	Now() time.Time
}

// System возвращает системное время
type System struct{}

// Now возвращает time.Now()
func (System) Now() time.Time {
	return time.Now()
}

// Manual часы с ручным управлением, для тестов
type Manual struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManual создаёт часы, остановленные на now
func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

// Now возвращает зафиксированное время
func (m *Manual) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set переставляет часы
func (m *Manual) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Advance сдвигает часы вперёд на d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
