package gmail

import (
	"regexp"
	"strings"
	"time"

	emaildomain "fileflow-backend/internal/email/domain"

	"google.golang.org/api/gmail/v1"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

func convertMessage(msg *gmail.Message) *emaildomain.Message {
	m := &emaildomain.Message{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		Snippet:    msg.Snippet,
		ReceivedAt: time.UnixMilli(msg.InternalDate),
		LabelIDs:   msg.LabelIds,
		Unread:     hasLabel(msg.LabelIds, "UNREAD"),
	}
	if msg.Payload == nil {
		return m
	}

	m.Subject = getHeader(msg.Payload.Headers, "Subject")
	m.From = getHeader(msg.Payload.Headers, "From")
	m.To = getHeader(msg.Payload.Headers, "To")
	m.Body = getBody(msg.Payload)
	m.Attachments = getAttachments(msg.Id, msg.Payload)
	return m
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// getBody prefers text/plain and falls back to tag-stripped text/html.
func getBody(payload *gmail.MessagePart) string {
	var plain, html string

	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part.Filename == "" && part.Body != nil && part.Body.Data != "" {
			if data, err := decodeBase64URL(part.Body.Data); err == nil {
				switch {
				case strings.HasPrefix(part.MimeType, "text/plain") && plain == "":
					plain = string(data)
				case strings.HasPrefix(part.MimeType, "text/html") && html == "":
					html = string(data)
				}
			}
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)

	if plain != "" {
		return strings.TrimSpace(plain)
	}
	return stripHTML(html)
}

func stripHTML(s string) string {
	s = htmlTag.ReplaceAllString(s, " ")
	replacer := strings.NewReplacer("&nbsp;", " ", "&lt;", "<", "&gt;", ">", "&amp;", "&", "&quot;", "\"")
	s = replacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func getAttachments(messageID string, payload *gmail.MessagePart) []emaildomain.AttachmentRef {
	var attachments []emaildomain.AttachmentRef

	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
			attachments = append(attachments, emaildomain.AttachmentRef{
				ID:        part.Body.AttachmentId,
				MessageID: messageID,
				Filename:  part.Filename,
				MimeType:  part.MimeType,
				Size:      part.Body.Size,
			})
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)
	return attachments
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}
