package quiz

import (
	"sync"

	"github.com/studylab/leitner/internal/deck"
)

// HardPool is the session-scoped queue of quiz items built from cards the
// learner marked hard during review. It is append-only until a session
// consumes it, and cleared entirely when that session completes. While the
// pool is active and non-empty, quiz navigation prefers it over the
// subject bank.
type HardPool struct {
	mu     sync.Mutex
	items  []deck.QuizItem
	active bool
}

// NewHardPool creates an empty, inactive pool.
func NewHardPool() *HardPool {
	return &HardPool{}
}

// Append adds an item and activates the pool.
func (p *HardPool) Append(item deck.QuizItem) {
	p.mu.Lock()
	p.items = append(p.items, item)
	p.active = true
	p.mu.Unlock()
}

// Active reports whether the pool should be preferred over the subject bank.
func (p *HardPool) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active && len(p.items) > 0
}

// Len returns the number of queued items.
func (p *HardPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Items returns a copy of the queued items.
func (p *HardPool) Items() []deck.QuizItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]deck.QuizItem{}, p.items...)
}

// Clear empties and deactivates the pool.
func (p *HardPool) Clear() {
	p.mu.Lock()
	p.items = nil
	p.active = false
	p.mu.Unlock()
}
