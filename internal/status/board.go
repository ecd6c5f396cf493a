// Package status keeps the operator-facing status line and last message.
package status

import (
	"sync"
	"time"
)

// Entry is a snapshot of the board.
type Entry struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Board holds the latest status and message. Repeated identical updates are not re-announced.
type Board struct {
	mu        sync.RWMutex
	entry     Entry
	listeners []func(Entry)
	now       func() time.Time
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{now: time.Now}
}

// OnChange registers fn, called synchronously after every change.
func (b *Board) OnChange(fn func(Entry)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// SetStatus replaces the status line, e.g. "serial connected: /dev/rfcomm4 @ 9600bps".
func (b *Board) SetStatus(s string) {
	b.update(func(e *Entry) bool {
		if e.Status == s {
			return false
		}
		e.Status = s
		return true
	})
}

// SetMessage replaces the last message, e.g. "recognised: Kim (label=1, score=41.2)".
func (b *Board) SetMessage(m string) {
	b.update(func(e *Entry) bool {
		if e.Message == m {
			return false
		}
		e.Message = m
		return true
	})
}

// Get returns the current entry.
func (b *Board) Get() Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entry
}

func (b *Board) update(fn func(*Entry) bool) {
	b.mu.Lock()
	if !fn(&b.entry) {
		b.mu.Unlock()
		return
	}
	b.entry.UpdatedAt = b.now()
	entry := b.entry
	listeners := b.listeners
	b.mu.Unlock()

	for _, l := range listeners {
		l(entry)
	}
}
