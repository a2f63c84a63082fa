package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	authdomain "fileflow-backend/internal/auth/domain"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes on every mailbox change.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*authdomain.User, error)
}

// TriggerFunc starts a background sync for the user.
type TriggerFunc func(userID string)

// Listener receives Gmail push notifications from Pub/Sub and triggers a sync
// for the affected user. Notifications at or below the last seen history id are dropped.
type Listener struct {
	pubsubClient *pubsub.Client
	users        UserFinder
	trigger      TriggerFunc
	topicName    string
	subName      string

	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

// NewListener connects to Pub/Sub. topic may be a short id or a full
// "projects/<p>/topics/<t>" name as used by Gmail watch.
func NewListener(ctx context.Context, projectID, topic, credentialsFile string, users UserFinder, trigger TriggerFunc) (*Listener, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topicName := topic
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		topicName = topic[i+1:]
	}

	return &Listener{
		pubsubClient:  client,
		users:         users,
		trigger:       trigger,
		topicName:     topicName,
		subName:       topicName + "-sub",
		lastHistoryID: make(map[string]uint64),
	}, nil
}

// Start blocks receiving messages until ctx is cancelled.
func (l *Listener) Start(ctx context.Context) {
	log.Info().Str("topic", l.topicName).Str("subscription", l.subName).Msg("[PubSub] Starting listener")

	sub := l.pubsubClient.Subscription(l.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Error().Err(err).Msg("[PubSub] Error checking subscription")
		return
	}

	if !exists {
		topic := l.pubsubClient.Topic(l.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Error().Err(err).Msg("[PubSub] Error checking topic")
			return
		}
		if !topicExists {
			log.Error().Str("topic", l.topicName).Msg("[PubSub] Topic does not exist, cannot create subscription")
			return
		}

		sub, err = l.pubsubClient.CreateSubscription(ctx, l.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Error().Err(err).Msg("[PubSub] Failed to create subscription")
			return
		}
		log.Info().Str("subscription", l.subName).Msg("[PubSub] Created subscription")
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		l.Handle(ctx, msg.Data)
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("[PubSub] Receive stopped")
	}
	log.Info().Msg("[PubSub] Listener stopped")
}

// Handle processes one notification payload and reports whether a sync was triggered.
func (l *Listener) Handle(ctx context.Context, data []byte) bool {
	var notification GmailNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		log.Warn().Err(err).Msg("[PubSub] Failed to unmarshal notification")
		return false
	}

	user, err := l.users.FindByEmail(ctx, notification.EmailAddress)
	if err != nil {
		log.Error().Err(err).Str("email", notification.EmailAddress).Msg("[PubSub] User lookup failed")
		return false
	}
	if user == nil || !user.HasGoogleCredentials() {
		log.Debug().Str("email", notification.EmailAddress).Msg("[PubSub] No linked user for notification")
		return false
	}

	l.mu.Lock()
	last, seen := l.lastHistoryID[user.ID]
	if seen && notification.HistoryID <= last {
		l.mu.Unlock()
		log.Debug().Str("user_id", user.ID).Uint64("history_id", notification.HistoryID).Msg("[PubSub] Duplicate notification skipped")
		return false
	}
	l.lastHistoryID[user.ID] = notification.HistoryID
	l.mu.Unlock()

	log.Info().Str("user_id", user.ID).Uint64("history_id", notification.HistoryID).Msg("[PubSub] Mailbox changed, triggering sync")
	l.trigger(user.ID)
	return true
}

func (l *Listener) Close() error {
	return l.pubsubClient.Close()
}
