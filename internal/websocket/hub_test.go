package websocket

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient is a test double for Client that captures sent messages.
type mockClient struct {
	id       string
	topic    string
	messages [][]byte
	mu       sync.Mutex
	closed   bool
}

func newMockClient(id, topic string) *mockClient {
	return &mockClient{
		id:       id,
		topic:    topic,
		messages: make([][]byte, 0),
	}
}

func (m *mockClient) ID() string {
	return m.id
}

func (m *mockClient) Topic() string {
	return m.topic
}

func (m *mockClient) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClientClosed
	}
	m.messages = append(m.messages, data)
	return nil
}

func (m *mockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockClient) GetMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([][]byte, len(m.messages))
	copy(copied, m.messages)
	return copied
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()

	client1 := newMockClient("client-1", "acct-1")
	client2 := newMockClient("client-2", "acct-1")
	client3 := newMockClient("client-3", "acct-2")

	hub.Register(client1)
	hub.Register(client2)
	hub.Register(client3)

	assert.Equal(t, 2, hub.ClientCount("acct-1"))
	assert.Equal(t, 1, hub.ClientCount("acct-2"))
	assert.Equal(t, 0, hub.ClientCount("acct-missing"))

	hub.Unregister(client1)
	assert.Equal(t, 1, hub.ClientCount("acct-1"))

	hub.Unregister(client2)
	hub.Unregister(client3)
	assert.Equal(t, 0, hub.ClientCount("acct-1"))
	assert.Equal(t, 0, hub.ClientCount("acct-2"))
}

func TestHub_Broadcast_AccountIsolation(t *testing.T) {
	hub := NewHub()

	client1a := newMockClient("client-1a", "acct-1")
	client1b := newMockClient("client-1b", "acct-1")
	client2 := newMockClient("client-2", "acct-2")

	hub.Register(client1a)
	hub.Register(client1b)
	hub.Register(client2)

	evt := TransactionPosted(map[string]interface{}{"id": float64(42)})
	hub.Broadcast("acct-1", evt)

	time.Sleep(10 * time.Millisecond)

	msgs1a := client1a.GetMessages()
	msgs1b := client1b.GetMessages()
	assert.Len(t, msgs1a, 1, "client1a should receive 1 message")
	assert.Len(t, msgs1b, 1, "client1b should receive 1 message")

	msgs2 := client2.GetMessages()
	assert.Len(t, msgs2, 0, "client2 should not receive message from acct-1")
}

func TestHub_Broadcast_MultipleFanOut(t *testing.T) {
	hub := NewHub()

	clients := make([]*mockClient, 5)
	for i := 0; i < 5; i++ {
		clients[i] = newMockClient(fmt.Sprintf("client-%d", i), "acct-1")
		hub.Register(clients[i])
	}

	evt := TransactionPosted(map[string]interface{}{"id": float64(1)})
	hub.Broadcast("acct-1", evt)

	time.Sleep(10 * time.Millisecond)

	for i, c := range clients {
		msgs := c.GetMessages()
		assert.Len(t, msgs, 1, "client %d should receive message", i)
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub()

	var wg sync.WaitGroup
	clientCount := 50

	clients := make([]*mockClient, clientCount)
	for i := 0; i < clientCount; i++ {
		clients[i] = newMockClient(fmt.Sprintf("client-%d", i), fmt.Sprintf("acct-%d", i%5))
	}

	for i := 0; i < clientCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			hub.Register(clients[idx])
		}(i)
	}

	wg.Wait()

	total := 0
	for a := 0; a < 5; a++ {
		total += hub.ClientCount(fmt.Sprintf("acct-%d", a))
	}
	assert.Equal(t, clientCount, total)

	for i := 0; i < clientCount; i++ {
		wg.Add(2)
		go func(idx int) {
			defer wg.Done()
			evt := TransactionPosted(map[string]interface{}{"id": float64(idx)})
			hub.Broadcast(fmt.Sprintf("acct-%d", idx%5), evt)
		}(i)
		go func(idx int) {
			defer wg.Done()
			hub.Unregister(clients[idx])
		}(i)
	}

	wg.Wait()

	for a := 0; a < 5; a++ {
		assert.Equal(t, 0, hub.ClientCount(fmt.Sprintf("acct-%d", a)))
	}
}

func TestHub_UnregisterNonexistent(t *testing.T) {
	hub := NewHub()

	client := newMockClient("client-1", "acct-1")

	require.NotPanics(t, func() {
		hub.Unregister(client)
	})
}

func TestHub_BroadcastToEmptyAccount(t *testing.T) {
	hub := NewHub()

	require.NotPanics(t, func() {
		evt := TransactionPosted(map[string]interface{}{"id": float64(1)})
		hub.Broadcast("acct-missing", evt)
	})
}
