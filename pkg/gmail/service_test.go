package gmail

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	emaildomain "fileflow-backend/internal/email/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return NewClientFromService(svc)
}

func TestHistoryExpiredCursor(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/history")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found."}}`))
	})

	_, err := client.History(context.Background(), "12345")
	assert.ErrorIs(t, err, emaildomain.ErrCursorExpired)
}

func TestHistoryInvalidCursor(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.History(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, emaildomain.ErrCursorExpired)
}

func TestHistoryCollectsAddedMessages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("startHistoryId"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"history": [
				{"messagesAdded": [{"message": {"id": "m1"}}, {"message": {"id": "m2"}}]},
				{"messagesAdded": [{"message": {"id": "m1"}}]}
			],
			"historyId": "200"
		}`))
	})

	page, err := client.History(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, page.MessageIDs)
	assert.Equal(t, "200", page.Cursor)
}

func TestMessageExistsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
	})

	exists, err := client.MessageExists(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUnauthorizedIsMapped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
	})

	_, err := client.CurrentCursor(context.Background())
	assert.ErrorIs(t, err, emaildomain.ErrUnauthorized)
}

func TestGetAttachmentDecodes(t *testing.T) {
	payload := base64.URLEncoding.EncodeToString([]byte("%PDF-1.4 bytes"))
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages/m1/attachments/a1"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":"` + payload + `"}`))
	})

	data, err := client.GetAttachment(context.Background(), "m1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 bytes", string(data))
}

func TestConvertMessageWalksParts(t *testing.T) {
	body := base64.URLEncoding.EncodeToString([]byte("Please find the invoice attached."))
	msg := &gmail.Message{
		Id:       "m1",
		LabelIds: []string{"INBOX", "UNREAD"},
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Invoice March"},
				{Name: "From", Value: "Billing <billing@acme.com>"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: body}},
				{MimeType: "multipart/mixed", Parts: []*gmail.MessagePart{
					{Filename: "Invoice_March.pdf", MimeType: "application/pdf", Body: &gmail.MessagePartBody{AttachmentId: "a1", Size: 2048}},
				}},
			},
		},
	}

	m := convertMessage(msg)

	assert.Equal(t, "Invoice March", m.Subject)
	assert.Equal(t, "Please find the invoice attached.", m.Body)
	assert.True(t, m.Unread)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "Invoice_March.pdf", m.Attachments[0].Filename)
	assert.Equal(t, "m1", m.Attachments[0].MessageID)
	assert.Equal(t, int64(2048), m.Attachments[0].Size)
}

func TestStripHTMLFallback(t *testing.T) {
	html := base64.URLEncoding.EncodeToString([]byte("<p>Hello&nbsp;<b>there</b></p>"))
	part := &gmail.MessagePart{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: html}}
	assert.Equal(t, "Hello there", getBody(part))
}

func TestComposeMessage(t *testing.T) {
	raw, err := composeMessage(&emaildomain.Draft{
		To:        []string{"bob@example.com"},
		Subject:   "Re: Contract",
		Body:      "Signed copy attached.",
		InReplyTo: "<abc@mail>",
	}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)

	text := string(raw)
	assert.Contains(t, text, "To: <bob@example.com>")
	assert.Contains(t, text, "Subject: Re: Contract")
	assert.Contains(t, text, "In-Reply-To: <abc@mail>")
	assert.Contains(t, text, "Signed copy attached.")
}

func TestComposeMessageRequiresRecipient(t *testing.T) {
	_, err := composeMessage(&emaildomain.Draft{Subject: "x"}, time.Now())
	assert.Error(t, err)
}
