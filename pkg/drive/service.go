package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	emaildomain "fileflow-backend/internal/email/domain"
	filesdomain "fileflow-backend/internal/files/domain"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Client wraps the Drive v3 API for folder lookup, folder creation and multipart upload.
type Client struct {
	srv *drive.Service
}

func NewClient(ctx context.Context, httpClient *http.Client) (*Client, error) {
	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}
	return NewClientFromService(srv), nil
}

func NewClientFromService(srv *drive.Service) *Client {
	return &Client{srv: srv}
}

// FindFolder returns the id of a non-trashed folder named name under parentID, or "".
func (c *Client) FindFolder(ctx context.Context, name, parentID string) (string, error) {
	if parentID == "" {
		parentID = "root"
	}
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), folderMimeType, escapeQuery(parentID))

	resp, err := c.srv.Files.List().Q(q).Fields("files(id, name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Files) == 0 {
		return "", nil
	}
	return resp.Files[0].Id, nil
}

func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if parentID == "" {
		parentID = "root"
	}
	f, err := c.srv.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", mapError(err)
	}
	return f.Id, nil
}

// Upload sends metadata and bytes in one multipart request.
func (c *Client) Upload(ctx context.Context, name, mimeType, parentID string, data []byte) (*filesdomain.UploadResult, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	f, err := c.srv.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{parentID},
	}).Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Fields("id, webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError(err)
	}
	return &filesdomain.UploadResult{FileID: f.Id, ViewURL: f.WebViewLink}, nil
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", emaildomain.ErrUnauthorized, err)
	}
	return err
}
