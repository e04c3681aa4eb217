package observability

import "time"

const WSRoutingKey = "ws_events.chats"

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// WSIdentity is who is on the other end of a socket.
type WSIdentity struct {
	UserID   int    `json:"user_id"`
	DeviceID string `json:"device_id"`
	IP       string `json:"ip"`
}

type wsDetail struct {
	Kind       string `json:"kind"`
	ChatID     int    `json:"resource_id"`
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason"`
}

// WSEvent builds a ws_events envelope. chatID is zero for
// connection-level events.
func WSEvent(name, connID string, chatID int, connectedAt time.Time, reason string, who WSIdentity) EventEnvelope {
	var dur int64
	if !connectedAt.IsZero() {
		dur = time.Since(connectedAt).Milliseconds()
	}
	return EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": wsDetail{
				Kind:       "chat",
				ChatID:     chatID,
				Event:      name,
				ConnID:     connID,
				DurationMS: dur,
				Reason:     reason,
			},
			"identity": who,
		},
	}
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
