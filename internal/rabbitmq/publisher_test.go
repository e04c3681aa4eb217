package rabbitmq

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"social-chat/internal/telemetry"
)

func TestEmptyURLFallsBackToNoop(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	p := NewPublisher("", "social.events", logger)

	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))
	assert.NoError(t, p.Publish(context.Background(), "audit.chat", telemetry.AuditEnvelope{EventType: "audit_log", RequestID: "r1"}))
	assert.Equal(t, "r1", hook.LastEntry().Data["request_id"])
	assert.NoError(t, p.Close())
}
