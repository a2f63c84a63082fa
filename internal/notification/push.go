package notification

import (
	"context"
	"fmt"

	authrepo "fileflow-backend/internal/auth/repository"
	"fileflow-backend/pkg/fcm"

	"github.com/rs/zerolog/log"
)

// Sender delivers one notification to many devices. *fcm.Client implements it.
type Sender interface {
	SendToDevices(ctx context.Context, tokens []string, notification fcm.NotificationData) ([]string, error)
}

// PushNotifier sends push notifications to every registered device of a user
// and forgets tokens that are no longer deliverable.
type PushNotifier struct {
	fcmRepo authrepo.FCMTokenRepository
	sender  Sender
}

func NewPushNotifier(fcmRepo authrepo.FCMTokenRepository, sender Sender) *PushNotifier {
	return &PushNotifier{fcmRepo: fcmRepo, sender: sender}
}

func (n *PushNotifier) Notify(ctx context.Context, userID, title, body string, data map[string]string) error {
	tokens, err := n.fcmRepo.GetTokensByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load device tokens: %w", err)
	}
	if len(tokens) == 0 {
		log.Debug().Str("user_id", userID).Msg("[FCM] No devices registered, skipping push")
		return nil
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	failed, err := n.sender.SendToDevices(ctx, tokenStrings, fcm.NotificationData{Title: title, Body: body, Data: data})
	if err != nil {
		return err
	}

	for _, token := range failed {
		if err := n.fcmRepo.DeleteToken(ctx, userID, token); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("[FCM] Failed to remove stale token")
		}
	}
	log.Info().Str("user_id", userID).Int("delivered", len(tokenStrings)-len(failed)).Msg("[FCM] Push sent")
	return nil
}
