package mocks

import (
	"context"
	"sync"

	"github.com/vietguard/vietguard-api/internal/notify"
)

// MockDispatcher implements notify.Dispatcher and records what it sends.
type MockDispatcher struct {
	// SendFn overrides the default behavior when set
	SendFn func(ctx context.Context, msg notify.Message) error
	// Err is returned when SendFn is nil
	Err error

	mu   sync.Mutex
	sent []notify.Message
}

var _ notify.Dispatcher = (*MockDispatcher)(nil)

// Send implements notify.Dispatcher. Messages are recorded only when the
// send succeeds.
func (m *MockDispatcher) Send(ctx context.Context, msg notify.Message) error {
	err := m.Err
	if m.SendFn != nil {
		err = m.SendFn(ctx, msg)
	}
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of the delivered messages.
func (m *MockDispatcher) Sent() []notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Message(nil), m.sent...)
}
