package ws

import (
	"time"

	"github.com/google/uuid"

	"social-chat/internal/observability"
)

// ConnInfo identifies a socket for lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnID() string {
	return uuid.NewString()
}

func (i ConnInfo) identity() observability.WSIdentity {
	return observability.WSIdentity{UserID: i.UserID, DeviceID: i.DeviceID, IP: i.IP}
}

func (i ConnInfo) headers() map[string]string {
	return observability.BuildHeaders(i.RequestID, i.TraceID)
}
