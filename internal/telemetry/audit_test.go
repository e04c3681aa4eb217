package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	key    string
	events []any
}

func (c *capture) Publish(_ context.Context, routingKey string, event any) error {
	c.key = routingKey
	c.events = append(c.events, event)
	return nil
}

func TestEmitBuildsEnvelope(t *testing.T) {
	pub := &capture{}
	e := NewAuditEmitter(pub, "audit.chat", "social-chat", "test", nil)

	e.Emit(context.Background(), "info", "chat 4 created", "req-9", 12)

	require.Len(t, pub.events, 1)
	env := pub.events[0].(AuditEnvelope)
	assert.Equal(t, "audit.chat", pub.key)
	assert.Equal(t, "audit_log", env.EventType)
	assert.Equal(t, "12", env.UserID)
	assert.Equal(t, "req-9", env.RequestID)
	assert.Equal(t, AuditPayload{Level: "info", Text: "chat 4 created"}, env.Payload)
}

func TestEmitOnNilEmitter(t *testing.T) {
	var e *AuditEmitter
	assert.NotPanics(t, func() { e.Emit(context.Background(), "info", "x", "", 0) })
}
