package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mytechsonamy/mytrader-sub018/internal/domain"
)

// mockSender records delivered payloads and can be switched into a failing
// mode or given a custom hook per send.
type mockSender struct {
	mu      sync.Mutex
	sent    [][]byte
	failing bool
	onSend  func(ctx context.Context, payload []byte) error
}

func (m *mockSender) Send(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	hook := m.onSend
	failing := m.failing
	m.mu.Unlock()

	if hook != nil {
		return hook(ctx, payload)
	}
	if failing {
		return errors.New("transport closed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, append([]byte(nil), payload...))
	return nil
}

func (m *mockSender) fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = true
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockSender) lastEvent(t *testing.T) domain.Event {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no payload delivered")

	var event domain.Event
	require.NoError(t, json.Unmarshal(m.sent[len(m.sent)-1], &event))
	return event
}
