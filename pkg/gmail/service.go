package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	emaildomain "fileflow-backend/internal/email/domain"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Credentials are the user's Google OAuth tokens.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Hooks let the caller persist refreshed tokens and react to revoked access.
type Hooks struct {
	OnTokenRefresh emaildomain.TokenUpdateFunc
	OnUnauthorized func()
}

type Service struct {
	clientID     string
	clientSecret string
	base         http.RoundTripper
}

type notifyTokenSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	current  string
	callback emaildomain.TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	changed := s.current != t.AccessToken
	s.current = t.AccessToken
	s.mu.Unlock()
	if changed && s.callback != nil {
		if err := s.callback(t); err != nil {
			log.Warn().Err(err).Msg("[Gmail] failed to persist refreshed token")
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		base:         http.DefaultTransport,
	}
}

// HTTPClient returns an authorised client with 429 retry. Drive shares it.
func (s *Service) HTTPClient(creds Credentials, hooks Hooks) *http.Client {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       creds.Expiry,
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	source := &notifyTokenSource{
		src:      config.TokenSource(context.Background(), token),
		current:  creds.AccessToken,
		callback: hooks.OnTokenRefresh,
	}

	retry := NewRetryTransport(s.base)
	retry.OnUnauthorized = hooks.OnUnauthorized

	return &http.Client{
		Transport: &oauth2.Transport{Source: source, Base: retry},
		Timeout:   60 * time.Second,
	}
}

// NewClient creates a mail gateway for one user.
func (s *Service) NewClient(ctx context.Context, creds Credentials, hooks Hooks) (*Client, error) {
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(s.HTTPClient(creds, hooks)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return NewClientFromService(srv), nil
}

// Client implements emaildomain.MailGateway against the Gmail REST API.
type Client struct {
	srv  *gmail.Service
	user string
}

func NewClientFromService(srv *gmail.Service) *Client {
	return &Client{srv: srv, user: "me"}
}

func (c *Client) ListMessages(ctx context.Context, query string, max int) ([]string, error) {
	if max <= 0 {
		max = 100
	}
	ids := make([]string, 0)
	pageToken := ""
	for len(ids) < max {
		pageSize := int64(max - len(ids))
		if pageSize > 500 {
			pageSize = 500
		}
		call := c.srv.Users.Messages.List(c.user).Q(query).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, mapError(err, nil)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return ids, nil
}

func (c *Client) GetMessage(ctx context.Context, id string) (*emaildomain.Message, error) {
	msg, err := c.srv.Users.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, mapError(err, emaildomain.ErrNotFound)
	}
	return convertMessage(msg), nil
}

func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	att, err := c.srv.Users.Messages.Attachments.Get(c.user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, mapError(err, emaildomain.ErrNotFound)
	}
	return decodeBase64URL(att.Data)
}

// History walks messageAdded events since cursor. A 404 means the cursor is too old.
func (c *Client) History(ctx context.Context, cursor string) (*emaildomain.HistoryPage, error) {
	start, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, emaildomain.ErrCursorExpired
	}

	page := &emaildomain.HistoryPage{Cursor: cursor}
	seen := make(map[string]bool)
	err = c.srv.Users.History.List(c.user).
		StartHistoryId(start).
		HistoryTypes("messageAdded").
		Context(ctx).
		Pages(ctx, func(resp *gmail.ListHistoryResponse) error {
			for _, h := range resp.History {
				for _, added := range h.MessagesAdded {
					if added.Message == nil || seen[added.Message.Id] {
						continue
					}
					seen[added.Message.Id] = true
					page.MessageIDs = append(page.MessageIDs, added.Message.Id)
				}
			}
			if resp.HistoryId > 0 {
				page.Cursor = strconv.FormatUint(resp.HistoryId, 10)
			}
			return nil
		})
	if err != nil {
		return nil, mapError(err, emaildomain.ErrCursorExpired)
	}
	return page, nil
}

func (c *Client) CurrentCursor(ctx context.Context) (string, error) {
	profile, err := c.srv.Users.GetProfile(c.user).Context(ctx).Do()
	if err != nil {
		return "", mapError(err, nil)
	}
	return strconv.FormatUint(profile.HistoryId, 10), nil
}

func (c *Client) MessageExists(ctx context.Context, id string) (bool, error) {
	_, err := c.srv.Users.Messages.Get(c.user, id).Format("minimal").Context(ctx).Do()
	if err != nil {
		mapped := mapError(err, emaildomain.ErrNotFound)
		if errors.Is(mapped, emaildomain.ErrNotFound) {
			return false, nil
		}
		return false, mapped
	}
	return true, nil
}

func (c *Client) ModifyLabels(ctx context.Context, id string, add, remove []string) error {
	_, err := c.srv.Users.Messages.Modify(c.user, id, &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
	return mapError(err, emaildomain.ErrNotFound)
}

func (c *Client) CreateDraft(ctx context.Context, draft *emaildomain.Draft) (string, error) {
	raw, err := composeMessage(draft, time.Now())
	if err != nil {
		return "", err
	}
	d, err := c.srv.Users.Drafts.Create(c.user, &gmail.Draft{
		Message: &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw), ThreadId: draft.ThreadID},
	}).Context(ctx).Do()
	if err != nil {
		return "", mapError(err, nil)
	}
	return d.Id, nil
}

func (c *Client) Send(ctx context.Context, draft *emaildomain.Draft) (string, error) {
	raw, err := composeMessage(draft, time.Now())
	if err != nil {
		return "", err
	}
	m, err := c.srv.Users.Messages.Send(c.user, &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: draft.ThreadID,
	}).Context(ctx).Do()
	if err != nil {
		return "", mapError(err, nil)
	}
	return m.Id, nil
}

// Watch registers the mailbox for Pub/Sub push and returns the starting history id.
func (c *Client) Watch(ctx context.Context, topic string) (string, error) {
	resp, err := c.srv.Users.Watch(c.user, &gmail.WatchRequest{
		TopicName: topic,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return "", mapError(err, nil)
	}
	return strconv.FormatUint(resp.HistoryId, 10), nil
}

func mapError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", emaildomain.ErrUnauthorized, err)
		case http.StatusNotFound:
			if notFound != nil {
				return fmt.Errorf("%w: %v", notFound, err)
			}
		}
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %v", emaildomain.ErrUnauthorized, err)
	}
	return err
}

func decodeBase64URL(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	return b, nil
}
