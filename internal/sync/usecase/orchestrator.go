package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	aidomain "fileflow-backend/internal/ai/domain"
	emaildomain "fileflow-backend/internal/email/domain"
	"fileflow-backend/internal/files/classifier"
	filesdomain "fileflow-backend/internal/files/domain"
	"fileflow-backend/internal/files/repository"
	"fileflow-backend/internal/state"
	statedomain "fileflow-backend/internal/state/domain"
	syncdomain "fileflow-backend/internal/sync/domain"
	tododomain "fileflow-backend/internal/todo/domain"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type SyncUsecase interface {
	ProcessEmails(ctx context.Context, userID string, opts syncdomain.Options) (*syncdomain.Result, error)
}

// ClientFactory opens per-user gateways. *authusecase.GoogleClients implements it.
type ClientFactory interface {
	Mail(ctx context.Context, userID string) (emaildomain.MailGateway, error)
	Drive(ctx context.Context, userID string) (filesdomain.DriveGateway, error)
}

type Classifier interface {
	Classify(ctx context.Context, in classifier.Input) filesdomain.Category
}

type Uploader interface {
	Upload(ctx context.Context, drive filesdomain.DriveGateway, userID, filename, mimeType string, category filesdomain.Category, data []byte) (*filesdomain.UploadResult, error)
}

// FileIndexer mirrors processed files into the semantic search index.
type FileIndexer interface {
	IndexFile(ctx context.Context, file *filesdomain.ProcessedFile) error
	DeleteFiles(ctx context.Context, ids []string) error
}

type TierChecker interface {
	IsPro(ctx context.Context, userID string) (bool, error)
}

type ActionExtractor interface {
	ExtractActionItems(ctx context.Context, userID string, in aidomain.EmailContent) (*aidomain.ActionItemsResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string) error
}

// Deps wires the orchestrator. Index, Tiers, Extractor, Todos and Notifier are optional.
type Deps struct {
	Clients    ClientFactory
	LocalState *state.LocalState
	Files      repository.FileRepository
	Classifier Classifier
	Uploader   Uploader
	Index      FileIndexer
	Tiers      TierChecker
	Extractor  ActionExtractor
	Todos      tododomain.TodoSink
	Notifier   Notifier
	Now        func() time.Time
}

type syncUsecase struct {
	Deps
	group singleflight.Group
}

func NewSyncUsecase(deps Deps) SyncUsecase {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &syncUsecase{Deps: deps}
}

// ProcessEmails runs one sync for the user. Concurrent calls share the in-flight run.
func (u *syncUsecase) ProcessEmails(ctx context.Context, userID string, opts syncdomain.Options) (*syncdomain.Result, error) {
	v, err, shared := u.group.Do(userID, func() (interface{}, error) {
		// The run outlives a caller that goes away so followers still get a result.
		return u.run(context.WithoutCancel(ctx), userID, opts)
	})
	if shared {
		log.Debug().Str("user_id", userID).Msg("[Sync] Joined in-flight sync")
	}
	if err != nil {
		return nil, err
	}
	return v.(*syncdomain.Result), nil
}

func (u *syncUsecase) run(ctx context.Context, userID string, opts syncdomain.Options) (*syncdomain.Result, error) {
	started := time.Now()
	now := u.Now()

	mail, err := u.Clients.Mail(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to open mailbox: %w", err)
	}

	files, err := u.Files.ListByUser(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load processed files: %w", err)
	}

	files, removed, err := u.reconcile(ctx, mail, userID, files, now)
	if err != nil {
		return nil, err
	}

	stored, err := u.LocalState.HistoryCursor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history cursor: %w", err)
	}
	fetched, err := u.fetch(ctx, mail, userID, stored, now)
	if err != nil {
		return nil, err
	}

	retry, err := u.LocalState.RetryMessages(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deferred messages: %w", err)
	}

	done := make(map[string]bool, len(files))
	for _, f := range files {
		if f.Status == filesdomain.StatusSuccess {
			done[f.Key()] = true
		}
	}
	ids := append(retryOrder(retry), fetched.messageIDs...)
	newFiles, failed, err := u.processMessages(ctx, mail, userID, ids, done)
	if err != nil {
		// Leave the cursor where it was so the same changes are fetched after re-auth.
		return nil, err
	}

	// Messages the cursor moves past are only seen again through the retry set, so it
	// is stored before the cursor.
	deferred := nextRetry(userID, retry, failed)
	if len(deferred) > 0 || len(retry) > 0 {
		if err := u.LocalState.SetRetryMessages(ctx, userID, deferred); err != nil {
			return nil, fmt.Errorf("failed to store deferred messages: %w", err)
		}
	}

	cursor := laterCursor(stored, fetched.cursor)
	if cursor != stored {
		if err := u.LocalState.SetHistoryCursor(ctx, userID, cursor); err != nil {
			return nil, fmt.Errorf("failed to store history cursor: %w", err)
		}
	}
	if err := u.LocalState.SetLastSync(ctx, userID, now); err != nil {
		return nil, fmt.Errorf("failed to store last sync: %w", err)
	}

	res := &syncdomain.Result{
		NewFiles:      newFiles,
		Removed:       removed,
		Cursor:        cursor,
		QueryFallback: fetched.fallback,
		Deferred:      len(deferred),
		SyncedAt:      now,
	}
	res.NewTodos, res.Notification = u.mine(ctx, mail, userID, opts)

	all, err := u.Files.ListByUser(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load processed files: %w", err)
	}
	res.Files = all

	log.Info().
		Str("user_id", userID).
		Int("messages", len(fetched.messageIDs)).
		Int("deferred", len(deferred)).
		Int("new_files", len(newFiles)).
		Int("removed", removed).
		Int("new_todos", res.NewTodos).
		Bool("query_fallback", fetched.fallback).
		Dur("took", time.Since(started)).
		Msg("[Sync] Completed")
	return res, nil
}

type fetchResult struct {
	messageIDs []string
	cursor     string
	fallback   bool
}

// fetch reads changes since the cursor, or runs the look-back query when there is none
// or the mailbox no longer knows it.
func (u *syncUsecase) fetch(ctx context.Context, mail emaildomain.MailGateway, userID, cursor string, now time.Time) (*fetchResult, error) {
	if cursor != "" {
		page, err := mail.History(ctx, cursor)
		if err == nil {
			return &fetchResult{messageIDs: page.MessageIDs, cursor: page.Cursor}, nil
		}
		if !errors.Is(err, emaildomain.ErrCursorExpired) {
			return nil, fmt.Errorf("failed to read mailbox history: %w", err)
		}
		log.Warn().Str("user_id", userID).Str("cursor", cursor).Msg("[Sync] History cursor expired, falling back to query")
	}

	period, err := u.LocalState.SyncPeriod(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync period: %w", err)
	}
	// Taken before listing so anything arriving meanwhile is picked up next run.
	current, err := mail.CurrentCursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read mailbox cursor: %w", err)
	}
	ids, err := mail.ListMessages(ctx, FallbackQuery(period, now), syncdomain.FallbackMaxMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return &fetchResult{messageIDs: ids, cursor: current, fallback: true}, nil
}

// FallbackQuery is the attachment query for the look-back window ending at now.
func FallbackQuery(period statedomain.SyncPeriod, now time.Time) string {
	days := period.Days()
	if days == 0 {
		return "has:attachment"
	}
	return "has:attachment after:" + now.AddDate(0, 0, -days).Format("2006/01/02")
}

func retryOrder(retry map[string]int) []string {
	ids := make([]string, 0, len(retry))
	for id := range retry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// nextRetry counts another failed attempt for each failed message. Messages that
// were fetched this run drop out.
func nextRetry(userID string, prev map[string]int, failed []string) map[string]int {
	next := make(map[string]int, len(failed))
	for _, id := range failed {
		attempts := prev[id] + 1
		if attempts >= syncdomain.MaxMessageFetchAttempts {
			log.Error().Str("user_id", userID).Str("message_id", id).Int("attempts", attempts).
				Msg("[Sync] Giving up on message after repeated fetch failures")
			continue
		}
		next[id] = attempts
	}
	return next
}

// laterCursor never moves a numeric cursor backwards.
func laterCursor(stored, next string) string {
	if next == "" {
		return stored
	}
	if stored == "" {
		return next
	}
	a, errA := strconv.ParseUint(stored, 10, 64)
	b, errB := strconv.ParseUint(next, 10, 64)
	if errA == nil && errB == nil && b < a {
		return stored
	}
	return next
}

type attachmentJob struct {
	msg *emaildomain.Message
	ref emaildomain.AttachmentRef
}

// processMessages returns the stored files and the ids of messages that could not be
// fetched for a reason other than being gone.
func (u *syncUsecase) processMessages(ctx context.Context, mail emaildomain.MailGateway, userID string, ids []string, done map[string]bool) ([]*filesdomain.ProcessedFile, []string, error) {
	var jobs []attachmentJob
	var failed []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		msg, err := mail.GetMessage(ctx, id)
		if err != nil {
			if errors.Is(err, emaildomain.ErrUnauthorized) {
				return nil, nil, err
			}
			if !errors.Is(err, emaildomain.ErrNotFound) {
				log.Warn().Err(err).Str("user_id", userID).Str("message_id", id).Msg("[Sync] Failed to fetch message, deferring")
				failed = append(failed, id)
			}
			continue
		}
		for _, ref := range msg.Attachments {
			key := filesdomain.FileKey(msg.ID, ref.Filename)
			if ref.Filename == "" || done[key] {
				continue
			}
			done[key] = true
			jobs = append(jobs, attachmentJob{msg: msg, ref: ref})
		}
	}
	if len(jobs) == 0 {
		return []*filesdomain.ProcessedFile{}, failed, nil
	}

	drive, driveErr := u.Clients.Drive(ctx, userID)
	if driveErr != nil {
		log.Warn().Err(driveErr).Str("user_id", userID).Msg("[Sync] Cloud storage unavailable, attachments stay pending")
	}

	out := make([]*filesdomain.ProcessedFile, 0, len(jobs))
	for start := 0; start < len(jobs); start += syncdomain.AttachmentBatchSize {
		batch := jobs[start:min(start+syncdomain.AttachmentBatchSize, len(jobs))]
		results := make([]*filesdomain.ProcessedFile, len(batch))

		var g errgroup.Group
		for i, job := range batch {
			g.Go(func() error {
				file, err := u.processAttachment(ctx, mail, drive, driveErr, userID, job)
				results[i] = file
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}

		for _, file := range results {
			if err := u.Files.Save(ctx, file); err != nil {
				log.Error().Err(err).Str("user_id", userID).Str("message_id", file.MessageID).
					Str("filename", file.Filename).Msg("[Sync] Failed to save processed file")
				continue
			}
			out = append(out, file)
			if file.Status == filesdomain.StatusSuccess && u.Index != nil {
				if err := u.Index.IndexFile(ctx, file); err != nil {
					log.Warn().Err(err).Str("file_id", file.ID).Msg("[Sync] Failed to index file")
				}
			}
		}
	}
	return out, failed, nil
}

// processAttachment never fails for per-item problems; those become Pending or Error
// records. Only a revoked authorization is returned.
func (u *syncUsecase) processAttachment(ctx context.Context, mail emaildomain.MailGateway, drive filesdomain.DriveGateway, driveErr error, userID string, job attachmentJob) (*filesdomain.ProcessedFile, error) {
	file := &filesdomain.ProcessedFile{
		UserID:     userID,
		MessageID:  job.msg.ID,
		Filename:   job.ref.Filename,
		From:       job.msg.From,
		Subject:    job.msg.Subject,
		Size:       job.ref.Size,
		MimeType:   job.ref.MimeType,
		UploadedAt: u.Now(),
	}
	file.Category = u.Classifier.Classify(ctx, classifier.Input{
		Filename: job.ref.Filename,
		Subject:  job.msg.Subject,
		Snippet:  job.msg.Snippet,
		From:     job.msg.From,
	})

	data, err := mail.GetAttachment(ctx, job.msg.ID, job.ref.ID)
	if err != nil {
		if errors.Is(err, emaildomain.ErrUnauthorized) {
			return nil, err
		}
		return u.stub(file, filesdomain.StatusError, err), nil
	}
	if file.Size == 0 {
		file.Size = int64(len(data))
	}

	if drive == nil {
		return u.stub(file, filesdomain.StatusPending, driveErr), nil
	}
	uploaded, err := u.Uploader.Upload(ctx, drive, userID, job.ref.Filename, job.ref.MimeType, file.Category, data)
	if err != nil {
		if errors.Is(err, emaildomain.ErrUnauthorized) {
			return nil, err
		}
		return u.stub(file, filesdomain.StatusPending, err), nil
	}

	file.Status = filesdomain.StatusSuccess
	file.DriveFileID = &uploaded.FileID
	file.ViewURL = &uploaded.ViewURL
	return file, nil
}

func (u *syncUsecase) stub(file *filesdomain.ProcessedFile, status filesdomain.Status, cause error) *filesdomain.ProcessedFile {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	log.Warn().Str("user_id", file.UserID).Str("message_id", file.MessageID).Str("filename", file.Filename).
		Str("status", string(status)).Str("error", msg).Msg("[Sync] Attachment not uploaded")
	file.Status = status
	file.Error = &msg
	return file
}

// reconcile drops files whose source message is gone. It runs at most once per
// ReconcileInterval and probes each distinct message once.
func (u *syncUsecase) reconcile(ctx context.Context, mail emaildomain.MailGateway, userID string, files []*filesdomain.ProcessedFile, now time.Time) ([]*filesdomain.ProcessedFile, int, error) {
	last, ok, err := u.LocalState.LastCleanup(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("[Sync] Failed to read last cleanup, skipping reconciliation")
		return files, 0, nil
	}
	if ok && now.Sub(last) < syncdomain.ReconcileInterval {
		return files, 0, nil
	}

	var messageIDs []string
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if !seen[f.MessageID] {
			seen[f.MessageID] = true
			messageIDs = append(messageIDs, f.MessageID)
		}
	}

	gone := make(map[string]bool)
	for start := 0; start < len(messageIDs); start += syncdomain.ReconcileBatchSize {
		batch := messageIDs[start:min(start+syncdomain.ReconcileBatchSize, len(messageIDs))]
		exists := make([]bool, len(batch))

		var g errgroup.Group
		for i, id := range batch {
			g.Go(func() error {
				ok, err := mail.MessageExists(ctx, id)
				if err != nil {
					if errors.Is(err, emaildomain.ErrUnauthorized) {
						return err
					}
					// Unknown state keeps the file.
					log.Warn().Err(err).Str("message_id", id).Msg("[Sync] Existence probe failed")
					ok = true
				}
				exists[i] = ok
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, 0, err
		}
		for i, id := range batch {
			if !exists[i] {
				gone[id] = true
			}
		}
	}

	kept := make([]*filesdomain.ProcessedFile, 0, len(files))
	var removedIDs []string
	for _, f := range files {
		if gone[f.MessageID] {
			removedIDs = append(removedIDs, f.ID)
			continue
		}
		kept = append(kept, f)
	}

	if len(removedIDs) > 0 {
		if err := u.Files.DeleteByIDs(ctx, userID, removedIDs); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("[Sync] Failed to drop ghost files")
			return files, 0, nil
		}
		if u.Index != nil {
			if err := u.Index.DeleteFiles(ctx, removedIDs); err != nil {
				log.Warn().Err(err).Str("user_id", userID).Msg("[Sync] Failed to drop ghost files from index")
			}
		}
		log.Info().Str("user_id", userID).Int("removed", len(removedIDs)).Msg("[Sync] Dropped ghost files")
	}
	if err := u.LocalState.SetLastCleanup(ctx, userID, now); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("[Sync] Failed to store last cleanup")
	}
	return kept, len(removedIDs), nil
}

// mine extracts todos from recent unread mail for Pro users. Failures are logged only.
func (u *syncUsecase) mine(ctx context.Context, mail emaildomain.MailGateway, userID string, opts syncdomain.Options) (int, string) {
	if u.Tiers == nil || u.Extractor == nil || u.Todos == nil {
		return 0, ""
	}
	pro, err := u.Tiers.IsPro(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("[Sync] Failed to read tier, skipping action items")
		return 0, ""
	}
	if !pro {
		return 0, ""
	}

	ids, err := mail.ListMessages(ctx, syncdomain.MiningQuery, syncdomain.MiningMaxMessages)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("[Sync] Failed to list unread mail")
		return 0, ""
	}
	extracted, err := u.LocalState.ExtractedIDs(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("[Sync] Failed to load mined message ids")
		return 0, ""
	}

	snapshot := make([]statedomain.UnreadEmail, 0, len(ids))
	var mined []string
	total := 0
	for _, id := range ids {
		msg, err := mail.GetMessage(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("message_id", id).Msg("[Sync] Failed to fetch unread message")
			continue
		}
		snapshot = append(snapshot, statedomain.UnreadEmail{
			ID:         msg.ID,
			Subject:    msg.Subject,
			From:       msg.From,
			Snippet:    msg.Snippet,
			ReceivedAt: msg.ReceivedAt,
		})
		if extracted[msg.ID] {
			continue
		}

		body := msg.Body
		if strings.TrimSpace(body) == "" {
			body = msg.Snippet
		}
		res, err := u.Extractor.ExtractActionItems(ctx, userID, aidomain.EmailContent{
			ResourceID: msg.ID,
			Subject:    msg.Subject,
			From:       msg.From,
			Body:       body,
		})
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.ID).Msg("[Sync] Action item extraction failed")
			continue
		}
		// A default answer means no provider looked at it; try again next run.
		if res.Meta.Fallback {
			continue
		}

		if len(res.Items) > 0 {
			todos := make([]tododomain.NewTodo, 0, len(res.Items))
			for _, item := range res.Items {
				todos = append(todos, tododomain.NewTodo{Text: item.Task, SourceID: msg.ID, SourceTitle: msg.Subject})
			}
			added, err := u.Todos.AddTodos(ctx, userID, todos)
			if err != nil {
				log.Warn().Err(err).Str("message_id", msg.ID).Msg("[Sync] Failed to save action items")
				continue
			}
			total += len(added)
		}
		mined = append(mined, msg.ID)
	}

	if err := u.LocalState.SetUnreadSnapshot(ctx, userID, snapshot); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("[Sync] Failed to store unread snapshot")
	}
	if len(mined) > 0 {
		if err := u.LocalState.MarkExtracted(ctx, userID, mined...); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("[Sync] Failed to mark mined messages")
		}
	}
	if total == 0 {
		return 0, ""
	}

	note := fmt.Sprintf("%d new action items found", total)
	if opts.Foreground {
		return total, note
	}
	if u.Notifier != nil {
		err := u.Notifier.Notify(ctx, userID, "New action items", note, map[string]string{
			"type":  "action_items",
			"count": strconv.Itoa(total),
		})
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("[Sync] Failed to push action item notification")
		}
	}
	return total, ""
}
