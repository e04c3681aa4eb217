package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"social-chat/internal/domain"
	"social-chat/internal/media"
	"social-chat/internal/observability"
)

// writeError maps domain errors to responses. NotFound and Forbidden both
// become 404 so non-participants cannot probe for chats.
func writeError(c *gin.Context, log logrus.FieldLogger, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrForbidden):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(logrus.Fields{
			"request_id": observability.RequestIDFromContext(c),
			"route":      c.FullPath(),
			"user_id":    c.GetInt("userID"),
		}).Error("request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	msg, ok := domain.PublicMessage(err)
	if !ok {
		msg = http.StatusText(status)
	}
	c.JSON(status, gin.H{"error": msg})
}

// pathID parses a positive integer path parameter.
func pathID(c *gin.Context, name, label string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + label})
		return 0, false
	}
	return id, true
}

// queryInt returns def when the parameter is absent.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Invalid(name, "must be an integer")
	}
	return n, nil
}

var errBadMultipart = errors.New("invalid multipart form")

// formFiles returns every part uploaded under field. Requests that are not
// multipart carry no files. More than limit parts is a validation error.
func formFiles(c *gin.Context, field string, limit int) ([]media.File, error) {
	form, err := c.MultipartForm()
	if errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, errBadMultipart
	}
	parts := form.File[field]
	if limit > 0 && len(parts) > limit {
		return nil, domain.Invalid(field, fmt.Sprintf("at most %d files allowed", limit))
	}
	files := make([]media.File, 0, len(parts))
	for _, fh := range parts {
		files = append(files, media.FromMultipart(fh))
	}
	return files, nil
}

func writeFormError(c *gin.Context, log logrus.FieldLogger, err error) {
	if errors.Is(err, errBadMultipart) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	writeError(c, log, err)
}
