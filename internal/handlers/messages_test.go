package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/courier/internal/broker"
	"github.com/nfrund/courier/internal/domain"
)

// mockMessaging implements MessagingService for testing.
type mockMessaging struct {
	sendErr  error
	sent     []string // "sender->recipient" per call
	messages map[string][]domain.Message
	listErr  error
}

func (m *mockMessaging) SendMessage(ctx context.Context, senderID, recipientID, content string) (*domain.Message, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, senderID+"->"+recipientID)
	return &domain.Message{SenderID: senderID, RecipientID: recipientID, Content: content}, nil
}

func (m *mockMessaging) GetMessagesForUser(ctx context.Context, userID string) (map[string][]domain.Message, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.messages, nil
}

func newTestContext(t *testing.T, method, body, userID string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	e.Validator = NewValidator()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, "/messages", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, "/messages", nil)
	}
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}

	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestSendMessage(t *testing.T) {
	svc := &mockMessaging{}
	h := NewMessageHandler(svc)

	c, rec := newTestContext(t, http.MethodPost, `{"recipientId":"r1","content":"hello"}`, "s1")
	require.NoError(t, h.SendMessage(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"s1->r1"}, svc.sent)
	assert.Contains(t, rec.Body.String(), `"content":"hello"`)
}

func TestSendMessage_MissingFields(t *testing.T) {
	h := NewMessageHandler(&mockMessaging{})

	c, _ := newTestContext(t, http.MethodPost, `{"recipientId":"r1"}`, "s1")
	err := h.SendMessage(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestSendMessage_Unauthenticated(t *testing.T) {
	h := NewMessageHandler(&mockMessaging{})

	c, _ := newTestContext(t, http.MethodPost, `{"recipientId":"r1","content":"hi"}`, "")
	err := h.SendMessage(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestSendMessage_InvalidRecipient(t *testing.T) {
	svc := &mockMessaging{sendErr: domain.ErrInvalidRecipient}
	h := NewMessageHandler(svc)

	c, _ := newTestContext(t, http.MethodPost, `{"recipientId":"ghost","content":"hi"}`, "s1")
	err := h.SendMessage(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestSendMessage_QueueFailure(t *testing.T) {
	svc := &mockMessaging{sendErr: &broker.QueueError{Op: "publish", Queue: "user_messages_r1", Err: errors.New("connection refused")}}
	h := NewMessageHandler(svc)

	c, _ := newTestContext(t, http.MethodPost, `{"recipientId":"r1","content":"hi"}`, "s1")
	err := h.SendMessage(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.Code)
}

func TestViewMessages(t *testing.T) {
	svc := &mockMessaging{messages: map[string][]domain.Message{
		"s1": {{SenderID: "s1", RecipientID: "r1", Content: "hello"}},
	}}
	h := NewMessageHandler(svc)

	c, rec := newTestContext(t, http.MethodGet, "", "r1")
	require.NoError(t, h.ViewMessages(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"s1"`)
}

func TestViewMessages_EmptyIsNotFound(t *testing.T) {
	h := NewMessageHandler(&mockMessaging{messages: map[string][]domain.Message{}})

	c, _ := newTestContext(t, http.MethodGet, "", "r1")
	err := h.ViewMessages(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}
