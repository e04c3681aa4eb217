package handlers

import (
	"github.com/gin-gonic/gin"

	"social-chat/internal/observability"
	"social-chat/internal/telemetry"
)

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, level, text string) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), level, text, observability.RequestIDFromContext(c), c.GetInt("userID"))
}
