package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/duebot/internal/model"
)

func TestNewPublisher_NopWithoutBrokers(t *testing.T) {
	p := NewPublisher(Config{Topic: "duebot.messages"})
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.Publish(context.Background(), model.MessageEvent{}))
	assert.NoError(t, p.Close())
}

func TestNewPublisher_Writer(t *testing.T) {
	p := NewPublisher(Config{Brokers: []string{"127.0.0.1:9092"}, Topic: "duebot.messages"})
	prod, ok := p.(*Producer)
	require.True(t, ok)
	assert.Equal(t, "duebot.messages", prod.w.Topic)
	assert.Equal(t, 50*time.Millisecond, prod.w.BatchTimeout)
}

func TestEncode(t *testing.T) {
	at := time.Date(2024, 1, 11, 8, 5, 0, 0, time.UTC)
	m, err := encode(model.MessageEvent{ID: "01A", TenantID: 42, Status: model.StatusError, Error: "timeout", At: at})
	require.NoError(t, err)

	assert.Equal(t, "42", string(m.Key))
	assert.Equal(t, at, m.Time)

	var back map[string]any
	require.NoError(t, json.Unmarshal(m.Value, &back))
	assert.Equal(t, "error", back["status"])
	assert.Equal(t, "timeout", back["error"])
}

func TestDecode(t *testing.T) {
	at := time.Date(2024, 1, 11, 8, 5, 0, 0, time.UTC)
	m, err := encode(model.MessageEvent{ID: "01A", TenantID: 42, ClientID: 7, Status: model.StatusSent, At: at})
	require.NoError(t, err)

	ev, err := Decode(m)
	require.NoError(t, err)
	assert.Equal(t, "01A", ev.ID)
	assert.Equal(t, int64(7), ev.ClientID)
	assert.Equal(t, model.StatusSent, ev.Status)
	assert.True(t, at.Equal(ev.At))

	_, err = Decode(Message{Value: []byte("{not json")})
	assert.Error(t, err)
	_, err = Decode(Message{Value: []byte(`{"tenant_id":42}`)})
	assert.ErrorIs(t, err, errEmptyEvent)
}

func TestNewConsumer(t *testing.T) {
	c := NewConsumer(ConsumerConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "duebot.messages"})
	cfg := c.r.Config()
	assert.Equal(t, "duebot.messages", cfg.Topic)
	assert.Equal(t, 1<<10, cfg.MinBytes)
	assert.Equal(t, 10<<20, cfg.MaxBytes)
	assert.NoError(t, c.Close())
}
