package mock

import (
	"sync"
	"time"
)

// Clock stamps the iat and exp claims of tokens issued by B2CServer.
type Clock interface {
	Now() time.Time
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// MockClock is a Clock that only moves when told to. Share one instance
// between B2CServer and the client under test (identity.WithClock(c.Now))
// so issued tokens age together with the client's notion of now.
type MockClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewMockClock starts the clock at start, or at the wall clock time when
// start is zero.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new time.
func (m *MockClock) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// AdvanceUntil moves the clock to remaining before expiresAt, e.g. into a
// refresh window. A negative remaining moves past the expiry. The clock
// never moves backwards.
func (m *MockClock) AdvanceUntil(expiresAt time.Time, remaining time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if target := expiresAt.Add(-remaining); target.After(m.now) {
		m.now = target
	}
	return m.now
}
