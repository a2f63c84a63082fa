package gmail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	emaildomain "fileflow-backend/internal/email/domain"

	"github.com/emersion/go-message/mail"
)

var errNoRecipients = errors.New("draft has no recipients")

// composeMessage renders a draft as an RFC 5322 plain-text message.
func composeMessage(d *emaildomain.Draft, now time.Time) ([]byte, error) {
	if len(d.To) == 0 {
		return nil, errNoRecipients
	}

	var h mail.Header
	h.SetDate(now)
	h.SetSubject(d.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	if err := setAddresses(&h, "To", d.To); err != nil {
		return nil, err
	}
	if len(d.Cc) > 0 {
		if err := setAddresses(&h, "Cc", d.Cc); err != nil {
			return nil, err
		}
	}
	if d.From != "" {
		if err := setAddresses(&h, "From", []string{d.From}); err != nil {
			return nil, err
		}
	}
	if d.InReplyTo != "" {
		h.Set("In-Reply-To", d.InReplyTo)
		h.Set("References", d.InReplyTo)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, d.Body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setAddresses(h *mail.Header, key string, values []string) error {
	addrs, err := mail.ParseAddressList(strings.Join(values, ", "))
	if err != nil {
		return fmt.Errorf("invalid %s address: %w", key, err)
	}
	h.SetAddressList(key, addrs)
	return nil
}
