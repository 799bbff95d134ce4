// Package activity implements the inactivity timer that ends a session
// when the visitor stops interacting with the page.
package activity

import (
	"sync"
	"time"

	"github.com/shehryarbajwa/pagetrack/internal/clock"
	"github.com/shehryarbajwa/pagetrack/pkg/models"
)

// Monitor holds a single pending inactivity timer. It knows nothing about
// sessions: whatever is registered with OnTimeout runs when the timer
// fires uncancelled.
type Monitor struct {
	mu         sync.Mutex
	clock      clock.Clock
	timeout    time.Duration
	onTimeout  func()
	timer      *clock.Timer
	deadline   time.Time
	generation uint64
	stopped    bool
}

// NewMonitor creates an idle monitor. No timer runs until Reset.
func NewMonitor(clk clock.Clock, timeout time.Duration) *Monitor {
	return &Monitor{clock: clk, timeout: timeout}
}

// OnTimeout registers the callback invoked when the timer fires
func (m *Monitor) OnTimeout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTimeout = fn
}

// Reset cancels any pending timer and schedules a new one for the full
// timeout from now.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}

	m.generation++
	generation := m.generation
	m.deadline = m.clock.Now().Add(m.timeout)
	m.timer = m.clock.AfterFunc(m.timeout, func() { m.fire(generation) })
}

// Signal resets the timer if signal counts as visitor activity. Each
// delivered signal resets at most once.
func (m *Monitor) Signal(signal models.SignalType) bool {
	if !IsActivity(signal) {
		return false
	}
	m.Reset()
	return true
}

// Deadline returns when the pending timer fires. ok is false when no
// timer is pending.
func (m *Monitor) Deadline() (deadline time.Time, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer == nil {
		return time.Time{}, false
	}
	return m.deadline, true
}

// Stop cancels the pending timer for good
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) fire(generation uint64) {
	m.mu.Lock()
	// a Reset that raced with the expiry wins
	if m.stopped || generation != m.generation {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	callback := m.onTimeout
	m.mu.Unlock()

	if callback != nil {
		callback()
	}
}

// IsActivity reports whether signal is one of the interaction signals
// that keep a session alive.
func IsActivity(signal models.SignalType) bool {
	switch signal {
	case models.SignalMouseMove, models.SignalKeyDown, models.SignalScroll, models.SignalClick:
		return true
	}
	return false
}
