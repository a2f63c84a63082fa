package scheduler

import (
	"context"
	"sync"
	"time"

	authdomain "fileflow-backend/internal/auth/domain"
	syncdomain "fileflow-backend/internal/sync/domain"
	"fileflow-backend/internal/sync/usecase"

	"github.com/rs/zerolog/log"
)

// UserLister returns the users whose mailbox can be synced.
type UserLister interface {
	ListGoogleLinked(ctx context.Context) ([]*authdomain.User, error)
}

// Housekeeping runs once per tick after the user sweep, e.g. purging expired cache entries.
type Housekeeping func(ctx context.Context) error

// SyncScheduler runs a background sync for every linked user on a fixed interval and
// accepts out-of-band triggers from the push listener.
type SyncScheduler struct {
	syncUsecase  usecase.SyncUsecase
	users        UserLister
	housekeeping []Housekeeping
	interval     time.Duration
	runTimeout   time.Duration
	stopChan     chan struct{}

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewSyncScheduler(syncUsecase usecase.SyncUsecase, users UserLister, interval time.Duration, housekeeping ...Housekeeping) *SyncScheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &SyncScheduler{
		syncUsecase:  syncUsecase,
		users:        users,
		housekeeping: housekeeping,
		interval:     interval,
		runTimeout:   5 * time.Minute,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *SyncScheduler) Start() {
	log.Info().Dur("interval", s.interval).Msg("[SyncScheduler] Starting")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-s.stopChan:
				log.Info().Msg("[SyncScheduler] Scheduler stopped")
				return
			}
		}
	}()
}

// Stop ends the loop and waits for in-flight runs.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopChan)
	s.mu.Unlock()
	s.wg.Wait()
}

// Trigger starts a background sync for one user without waiting for it.
func (s *SyncScheduler) Trigger(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.syncUser(userID)
	}()
}

func (s *SyncScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	users, err := s.users.ListGoogleLinked(ctx)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("[SyncScheduler] Failed to list users")
	} else {
		for _, user := range users {
			select {
			case <-s.stopChan:
				return
			default:
			}
			s.syncUser(user.ID)
		}
	}

	for _, job := range s.housekeeping {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := job(ctx); err != nil {
			log.Warn().Err(err).Msg("[SyncScheduler] Housekeeping failed")
		}
		cancel()
	}
}

func (s *SyncScheduler) syncUser(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	res, err := s.syncUsecase.ProcessEmails(ctx, userID, syncdomain.Options{})
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("[SyncScheduler] Background sync failed")
		return
	}
	if len(res.NewFiles) > 0 || res.NewTodos > 0 {
		log.Info().Str("user_id", userID).Int("new_files", len(res.NewFiles)).Int("new_todos", res.NewTodos).
			Msg("[SyncScheduler] Background sync finished")
	}
}
