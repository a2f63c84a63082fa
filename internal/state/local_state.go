package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	statedomain "fileflow-backend/internal/state/domain"
	"fileflow-backend/internal/state/repository"
)

// LocalState gives typed access to a user's records. Read-modify-write updates are
// serialised per (user, key) so concurrent batch completions never lose a merge.
type LocalState struct {
	store repository.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalState(store repository.Store) *LocalState {
	return &LocalState{store: store, locks: make(map[string]*sync.Mutex)}
}

func (s *LocalState) lock(userID string, key statedomain.Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := userID + "/" + string(key)
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// GetJSON decodes the record into dest. It reports false when the record is absent.
func (s *LocalState) GetJSON(ctx context.Context, userID string, key statedomain.Key, dest interface{}) (bool, error) {
	raw, ok, err := s.store.Get(ctx, userID, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *LocalState) PutJSON(ctx context.Context, userID string, key statedomain.Key, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, userID, key, string(b))
}

// Update runs fn over the current value of key (zero value when absent) and stores the
// result. Returning an error from fn aborts the write.
func Update[T any](ctx context.Context, s *LocalState, userID string, key statedomain.Key, fn func(v *T) error) error {
	l := s.lock(userID, key)
	l.Lock()
	defer l.Unlock()

	var v T
	if _, err := s.GetJSON(ctx, userID, key, &v); err != nil {
		return err
	}
	if err := fn(&v); err != nil {
		return err
	}
	return s.PutJSON(ctx, userID, key, v)
}

// Clear removes every record owned by userID.
func (s *LocalState) Clear(ctx context.Context, userID string) error {
	return s.store.Clear(ctx, userID)
}

func (s *LocalState) UserInfo(ctx context.Context, userID string) (*statedomain.UserInfo, error) {
	var info statedomain.UserInfo
	ok, err := s.GetJSON(ctx, userID, statedomain.KeyUserInfo, &info)
	if err != nil || !ok {
		return nil, err
	}
	return &info, nil
}

func (s *LocalState) SetUserInfo(ctx context.Context, info *statedomain.UserInfo) error {
	return s.PutJSON(ctx, info.ID, statedomain.KeyUserInfo, info)
}

func (s *LocalState) getTime(ctx context.Context, userID string, key statedomain.Key) (time.Time, bool, error) {
	var t time.Time
	ok, err := s.GetJSON(ctx, userID, key, &t)
	return t, ok, err
}

func (s *LocalState) LastSync(ctx context.Context, userID string) (time.Time, bool, error) {
	return s.getTime(ctx, userID, statedomain.KeyLastSync)
}

func (s *LocalState) SetLastSync(ctx context.Context, userID string, t time.Time) error {
	return s.PutJSON(ctx, userID, statedomain.KeyLastSync, t)
}

func (s *LocalState) LastCleanup(ctx context.Context, userID string) (time.Time, bool, error) {
	return s.getTime(ctx, userID, statedomain.KeyLastCleanup)
}

func (s *LocalState) SetLastCleanup(ctx context.Context, userID string, t time.Time) error {
	return s.PutJSON(ctx, userID, statedomain.KeyLastCleanup, t)
}

func (s *LocalState) HistoryCursor(ctx context.Context, userID string) (string, error) {
	var cursor string
	_, err := s.GetJSON(ctx, userID, statedomain.KeyHistoryCursor, &cursor)
	return cursor, err
}

func (s *LocalState) SetHistoryCursor(ctx context.Context, userID, cursor string) error {
	return s.PutJSON(ctx, userID, statedomain.KeyHistoryCursor, cursor)
}

func (s *LocalState) SyncPeriod(ctx context.Context, userID string) (statedomain.SyncPeriod, error) {
	var p statedomain.SyncPeriod
	ok, err := s.GetJSON(ctx, userID, statedomain.KeySyncPeriod, &p)
	if err != nil {
		return statedomain.DefaultSyncPeriod, err
	}
	if !ok || !p.Valid() {
		return statedomain.DefaultSyncPeriod, nil
	}
	return p, nil
}

func (s *LocalState) SetSyncPeriod(ctx context.Context, userID string, p statedomain.SyncPeriod) error {
	if !p.Valid() {
		return fmt.Errorf("invalid sync period %q", p)
	}
	return s.PutJSON(ctx, userID, statedomain.KeySyncPeriod, p)
}

func (s *LocalState) Theme(ctx context.Context, userID string) (statedomain.Theme, error) {
	var t statedomain.Theme
	ok, err := s.GetJSON(ctx, userID, statedomain.KeyTheme, &t)
	if err != nil {
		return statedomain.ThemeSystem, err
	}
	if !ok || !t.Valid() {
		return statedomain.ThemeSystem, nil
	}
	return t, nil
}

func (s *LocalState) SetTheme(ctx context.Context, userID string, t statedomain.Theme) error {
	if !t.Valid() {
		return fmt.Errorf("invalid theme %q", t)
	}
	return s.PutJSON(ctx, userID, statedomain.KeyTheme, t)
}

func (s *LocalState) UnreadSnapshot(ctx context.Context, userID string) ([]statedomain.UnreadEmail, error) {
	var emails []statedomain.UnreadEmail
	_, err := s.GetJSON(ctx, userID, statedomain.KeyUnreadSnapshot, &emails)
	return emails, err
}

func (s *LocalState) SetUnreadSnapshot(ctx context.Context, userID string, emails []statedomain.UnreadEmail) error {
	return s.PutJSON(ctx, userID, statedomain.KeyUnreadSnapshot, emails)
}

// RetryMessages returns messages a previous sync could not fetch, with the number of
// failed attempts so far.
func (s *LocalState) RetryMessages(ctx context.Context, userID string) (map[string]int, error) {
	var retry map[string]int
	if _, err := s.GetJSON(ctx, userID, statedomain.KeyRetryMessages, &retry); err != nil {
		return nil, err
	}
	if retry == nil {
		retry = map[string]int{}
	}
	return retry, nil
}

func (s *LocalState) SetRetryMessages(ctx context.Context, userID string, retry map[string]int) error {
	return s.PutJSON(ctx, userID, statedomain.KeyRetryMessages, retry)
}

// ExtractedIDs returns the set of messages already mined for action items.
func (s *LocalState) ExtractedIDs(ctx context.Context, userID string) (map[string]bool, error) {
	var ids []string
	if _, err := s.GetJSON(ctx, userID, statedomain.KeyExtractedEmails, &ids); err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// MarkExtracted appends ids to the mined set, keeping the most recent MaxExtractedIDs.
func (s *LocalState) MarkExtracted(ctx context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return Update(ctx, s, userID, statedomain.KeyExtractedEmails, func(list *[]string) error {
		present := make(map[string]bool, len(*list))
		for _, id := range *list {
			present[id] = true
		}
		for _, id := range ids {
			if !present[id] {
				*list = append(*list, id)
				present[id] = true
			}
		}
		if over := len(*list) - statedomain.MaxExtractedIDs; over > 0 {
			*list = append([]string(nil), (*list)[over:]...)
		}
		return nil
	})
}
