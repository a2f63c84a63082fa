package uploader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	filesdomain "fileflow-backend/internal/files/domain"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Uploader files attachments under <root>/<category>/<year> in the user's drive.
type Uploader struct {
	rootName string
	now      func() time.Time

	// folders maps user|parent|name to a drive folder id.
	mu      sync.Mutex
	folders map[string]string
	group   singleflight.Group
}

func New(rootName string, now func() time.Time) *Uploader {
	if rootName == "" {
		rootName = "FileFlow"
	}
	if now == nil {
		now = time.Now
	}
	return &Uploader{rootName: rootName, now: now, folders: make(map[string]string)}
}

// Upload ensures the folder path exists and uploads data into it.
func (u *Uploader) Upload(ctx context.Context, drive filesdomain.DriveGateway, userID, filename, mimeType string, category filesdomain.Category, data []byte) (*filesdomain.UploadResult, error) {
	rootID, err := u.folder(ctx, drive, userID, u.rootName, "")
	if err != nil {
		return nil, err
	}
	categoryID, err := u.folder(ctx, drive, userID, string(category), rootID)
	if err != nil {
		return nil, err
	}
	yearID, err := u.folder(ctx, drive, userID, strconv.Itoa(u.now().Year()), categoryID)
	if err != nil {
		return nil, err
	}

	result, err := drive.Upload(ctx, filename, mimeType, yearID, data)
	if err != nil {
		// The cached path may point at folders the user removed.
		u.Reset(userID)
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	log.Debug().Str("user_id", userID).Str("filename", filename).Str("file_id", result.FileID).Msg("[Uploader] Uploaded")
	return result, nil
}

// Reset forgets the cached folders of one user.
func (u *Uploader) Reset(userID string) {
	prefix := userID + "|"
	u.mu.Lock()
	defer u.mu.Unlock()
	for key := range u.folders {
		if strings.HasPrefix(key, prefix) {
			delete(u.folders, key)
		}
	}
}

func (u *Uploader) ResetAll() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.folders = make(map[string]string)
}

// folder resolves one path level. Concurrent callers for the same level share a
// single find-or-create so a folder is never created twice.
func (u *Uploader) folder(ctx context.Context, drive filesdomain.DriveGateway, userID, name, parentID string) (string, error) {
	key := userID + "|" + parentID + "|" + name

	u.mu.Lock()
	id, ok := u.folders[key]
	u.mu.Unlock()
	if ok {
		return id, nil
	}

	v, err, _ := u.group.Do(key, func() (interface{}, error) {
		u.mu.Lock()
		id, ok := u.folders[key]
		u.mu.Unlock()
		if ok {
			return id, nil
		}

		id, err := ensureFolder(ctx, drive, name, parentID)
		if err != nil {
			return "", err
		}
		u.mu.Lock()
		u.folders[key] = id
		u.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func ensureFolder(ctx context.Context, drive filesdomain.DriveGateway, name, parentID string) (string, error) {
	id, err := drive.FindFolder(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("find folder %s: %w", name, err)
	}
	if id != "" {
		return id, nil
	}
	id, err = drive.CreateFolder(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("create folder %s: %w", name, err)
	}
	return id, nil
}
