// Package clock предоставляет источники текущего времени.
package clock

import (
	"context"
	"sync"
	"time"
)

// System возвращает время локальных часов сервера в UTC.
type System struct{}

// Now возвращает текущее время.
func (System) Now(context.Context) (time.Time, error) {
	return time.Now().UTC(), nil
}

// Fixed возвращает заданное время; используется в тестах и при воспроизведении.
type Fixed struct {
	mu sync.Mutex
	at time.Time
}

// NewFixed создаёт часы, остановленные на моменте at.
func NewFixed(at time.Time) *Fixed {
	return &Fixed{at: at}
}

// Now возвращает зафиксированное время.
func (f *Fixed) Now(context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.at, nil
}

// Advance сдвигает зафиксированное время.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.at = f.at.Add(d)
	f.mu.Unlock()
}
