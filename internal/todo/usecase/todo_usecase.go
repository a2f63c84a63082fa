package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fileflow-backend/internal/state"
	statedomain "fileflow-backend/internal/state/domain"
	tododomain "fileflow-backend/internal/todo/domain"
	"fileflow-backend/internal/todo/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// errNoChange aborts an update that would not modify the list.
var errNoChange = errors.New("no change")

type TodoUsecase interface {
	tododomain.TodoSink
	// List returns the local list, hydrating it from the remote mirror when empty.
	List(ctx context.Context, userID string) ([]*tododomain.Todo, error)
	// Sync merges a client list into the local one and returns the merged list.
	Sync(ctx context.Context, userID string, todos []*tododomain.Todo) ([]*tododomain.Todo, error)
	Update(ctx context.Context, userID, id string, update tododomain.TodoUpdate) (*tododomain.Todo, error)
	Delete(ctx context.Context, userID, id string) error
}

// Enqueuer receives remote write jobs. *SyncQueue implements it.
type Enqueuer interface {
	Enqueue(job SyncJob) bool
}

type todoUsecase struct {
	localState *state.LocalState
	remote     repository.TodoRepository
	queue      Enqueuer
	now        func() time.Time
}

func NewTodoUsecase(localState *state.LocalState, remote repository.TodoRepository, queue Enqueuer, now func() time.Time) TodoUsecase {
	if now == nil {
		now = time.Now
	}
	return &todoUsecase{localState: localState, remote: remote, queue: queue, now: now}
}

func (u *todoUsecase) update(ctx context.Context, userID string, fn func(list *[]*tododomain.Todo) error) error {
	return state.Update(ctx, u.localState, userID, statedomain.KeyTodos, fn)
}

func (u *todoUsecase) upsertRemote(userID string, t *tododomain.Todo) {
	copied := *t
	u.queue.Enqueue(SyncJob{Op: OpUpsert, UserID: userID, TodoID: t.ID, Todo: &copied})
}

func (u *todoUsecase) AddTodos(ctx context.Context, userID string, todos []tododomain.NewTodo) ([]*tododomain.Todo, error) {
	var added []*tododomain.Todo
	err := u.update(ctx, userID, func(list *[]*tododomain.Todo) error {
		added = nil
		seen := make(map[string]bool, len(*list))
		for _, t := range *list {
			seen[t.Key()] = true
		}
		now := u.now()
		for _, in := range todos {
			text := strings.TrimSpace(in.Text)
			if text == "" {
				continue
			}
			key := tododomain.DedupKey(in.SourceID, text)
			if seen[key] {
				continue
			}
			seen[key] = true
			t := &tododomain.Todo{
				ID:          uuid.New().String(),
				UserID:      userID,
				SourceID:    in.SourceID,
				SourceTitle: in.SourceTitle,
				Text:        text,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			*list = append(*list, t)
			added = append(added, t)
		}
		if len(added) == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return nil, fmt.Errorf("failed to save todos: %w", err)
	}

	for _, t := range added {
		u.upsertRemote(userID, t)
	}
	return added, nil
}

func (u *todoUsecase) List(ctx context.Context, userID string) ([]*tododomain.Todo, error) {
	var local []*tododomain.Todo
	if _, err := u.localState.GetJSON(ctx, userID, statedomain.KeyTodos, &local); err != nil {
		return nil, err
	}
	if len(local) > 0 {
		return local, nil
	}

	remote, err := u.remote.FindByUserID(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("[Todo] Remote hydrate failed, serving local list")
		return []*tododomain.Todo{}, nil
	}
	if len(remote) == 0 {
		return []*tododomain.Todo{}, nil
	}
	err = u.update(ctx, userID, func(list *[]*tododomain.Todo) error {
		if len(*list) > 0 {
			return errNoChange
		}
		*list = remote
		return nil
	})
	if errors.Is(err, errNoChange) {
		return u.List(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	return remote, nil
}

func (u *todoUsecase) Sync(ctx context.Context, userID string, incoming []*tododomain.Todo) ([]*tododomain.Todo, error) {
	var merged []*tododomain.Todo
	var changed []*tododomain.Todo
	err := u.update(ctx, userID, func(list *[]*tododomain.Todo) error {
		changed = nil
		byID := make(map[string]*tododomain.Todo, len(*list))
		byKey := make(map[string]*tododomain.Todo, len(*list))
		for _, t := range *list {
			byID[t.ID] = t
			byKey[t.Key()] = t
		}
		now := u.now()

		for _, in := range incoming {
			text := strings.TrimSpace(in.Text)
			if text == "" {
				continue
			}
			if existing := byID[in.ID]; existing != nil {
				key := tododomain.DedupKey(existing.SourceID, text)
				if other := byKey[key]; other != nil && other != existing {
					// The new text belongs to another item; keep this one's text.
					text = existing.Text
				}
				if existing.Text == text && existing.Completed == in.Completed {
					continue
				}
				delete(byKey, existing.Key())
				existing.Text = text
				existing.Completed = in.Completed
				existing.UpdatedAt = now
				byKey[existing.Key()] = existing
				changed = append(changed, existing)
				continue
			}
			// Same item under another id: only the completion flag is taken.
			if existing := byKey[tododomain.DedupKey(in.SourceID, text)]; existing != nil {
				if existing.Completed != in.Completed {
					existing.Completed = in.Completed
					existing.UpdatedAt = now
					changed = append(changed, existing)
				}
				continue
			}

			t := &tododomain.Todo{
				ID:          in.ID,
				UserID:      userID,
				SourceID:    in.SourceID,
				SourceTitle: in.SourceTitle,
				Text:        text,
				Completed:   in.Completed,
				CreatedAt:   in.CreatedAt,
				UpdatedAt:   now,
			}
			if t.ID == "" {
				t.ID = uuid.New().String()
			}
			if t.CreatedAt.IsZero() {
				t.CreatedAt = now
			}
			*list = append(*list, t)
			byID[t.ID] = t
			byKey[t.Key()] = t
			changed = append(changed, t)
		}
		merged = *list
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to merge todos: %w", err)
	}

	for _, t := range changed {
		u.upsertRemote(userID, t)
	}
	if merged == nil {
		merged = []*tododomain.Todo{}
	}
	return merged, nil
}

func (u *todoUsecase) Update(ctx context.Context, userID, id string, update tododomain.TodoUpdate) (*tododomain.Todo, error) {
	if update.Text != nil && strings.TrimSpace(*update.Text) == "" {
		return nil, tododomain.ErrEmptyText
	}
	var updated *tododomain.Todo
	err := u.update(ctx, userID, func(list *[]*tododomain.Todo) error {
		var target *tododomain.Todo
		for _, t := range *list {
			if t.ID == id {
				target = t
				break
			}
		}
		if target == nil {
			return tododomain.ErrNotFound
		}
		if update.Text != nil {
			key := tododomain.DedupKey(target.SourceID, *update.Text)
			for _, t := range *list {
				if t != target && t.Key() == key {
					return tododomain.ErrDuplicate
				}
			}
		}
		if update.Text != nil {
			target.Text = strings.TrimSpace(*update.Text)
		}
		if update.Completed != nil {
			target.Completed = *update.Completed
		}
		target.UpdatedAt = u.now()
		updated = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.upsertRemote(userID, updated)
	return updated, nil
}

func (u *todoUsecase) Delete(ctx context.Context, userID, id string) error {
	err := u.update(ctx, userID, func(list *[]*tododomain.Todo) error {
		for i, t := range *list {
			if t.ID == id {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return nil
			}
		}
		return tododomain.ErrNotFound
	})
	if err != nil {
		return err
	}
	u.queue.Enqueue(SyncJob{Op: OpDelete, UserID: userID, TodoID: id})
	return nil
}
