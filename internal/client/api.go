package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"social-chat/internal/media"
	"social-chat/internal/service"
)

// ErrNotLoggedIn is returned before any request when the session is empty.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for k, v := range e.Fields {
			parts = append(parts, k+": "+v)
		}
		return fmt.Sprintf("%d %s (%s)", e.Status, e.Message, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// API is a thin REST client over the /api/v1 routes.
type API struct {
	base    string
	session *Session
	http    *http.Client
}

// NewAPI builds a client for base, e.g. "http://localhost:8080/api/v1".
func NewAPI(base string, session *Session, hc *http.Client) *API {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &API{base: strings.TrimRight(base, "/"), session: session, http: hc}
}

func (a *API) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	token := a.session.Token()
	if token == "" {
		return ErrNotLoggedIn
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *API) ListChats(ctx context.Context) ([]service.ChatListItem, error) {
	var resp struct {
		Chats []service.ChatListItem `json:"chats"`
	}
	if err := a.do(ctx, http.MethodGet, "/chat", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

func (a *API) GetOrCreateChat(ctx context.Context, userID int) (service.ChatView, error) {
	var resp struct {
		Chat service.ChatView `json:"chat"`
	}
	err := a.do(ctx, http.MethodPost, "/chat/user/"+strconv.Itoa(userID), "", nil, &resp)
	return resp.Chat, err
}

func (a *API) ListMessages(ctx context.Context, chatID, page, limit int) (service.MessagePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var resp service.MessagePage
	err := a.do(ctx, http.MethodGet, "/chat/"+strconv.Itoa(chatID)+"?"+q.Encode(), "", nil, &resp)
	return resp, err
}

// SendMessage posts text and an optional attachment as multipart form data.
func (a *API) SendMessage(ctx context.Context, chatID int, text string, att *media.Attachment) (service.MessageView, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if text != "" {
		if err := w.WriteField("text", text); err != nil {
			return service.MessageView{}, err
		}
	}
	if att != nil {
		part, err := w.CreatePart(mediaHeader(att))
		if err != nil {
			return service.MessageView{}, err
		}
		if _, err := part.Write(att.Data); err != nil {
			return service.MessageView{}, err
		}
	}
	if err := w.Close(); err != nil {
		return service.MessageView{}, err
	}

	var msg service.MessageView
	err := a.do(ctx, http.MethodPost, "/chat/"+strconv.Itoa(chatID)+"/messages", w.FormDataContentType(), &buf, &msg)
	return msg, err
}

func mediaHeader(att *media.Attachment) textproto.MIMEHeader {
	return textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="media"; filename=%q`, att.Name)},
		"Content-Type":        {att.ContentType},
	}
}
