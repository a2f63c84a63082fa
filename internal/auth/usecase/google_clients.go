package usecase

import (
	"context"
	"fmt"
	"time"

	authdomain "fileflow-backend/internal/auth/domain"
	"fileflow-backend/internal/auth/repository"
	emaildomain "fileflow-backend/internal/email/domain"
	filesdomain "fileflow-backend/internal/files/domain"
	"fileflow-backend/pkg/crypto"
	"fileflow-backend/pkg/drive"
	"fileflow-backend/pkg/gmail"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// GoogleClients builds per-user Gmail and Drive gateways from the stored credentials.
// Refreshed tokens are written back; a 401 from Google clears the credentials.
type GoogleClients struct {
	userRepo repository.UserRepository
	box      *crypto.Box
	service  *gmail.Service
}

func NewGoogleClients(userRepo repository.UserRepository, box *crypto.Box, service *gmail.Service) *GoogleClients {
	return &GoogleClients{userRepo: userRepo, box: box, service: service}
}

func (f *GoogleClients) Mail(ctx context.Context, userID string) (emaildomain.MailGateway, error) {
	creds, err := f.credentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	return f.service.NewClient(ctx, creds, f.hooks(userID))
}

func (f *GoogleClients) Drive(ctx context.Context, userID string) (filesdomain.DriveGateway, error) {
	creds, err := f.credentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	return drive.NewClient(ctx, f.service.HTTPClient(creds, f.hooks(userID)))
}

func (f *GoogleClients) credentials(ctx context.Context, userID string) (gmail.Credentials, error) {
	user, err := f.userRepo.FindByID(ctx, userID)
	if err != nil {
		return gmail.Credentials{}, err
	}
	if user == nil || !user.HasGoogleCredentials() {
		return gmail.Credentials{}, authdomain.ErrNoCredentials
	}

	access, err := f.box.Decrypt(user.GoogleAccessToken)
	if err != nil {
		return gmail.Credentials{}, fmt.Errorf("%w: %v", authdomain.ErrNoCredentials, err)
	}
	refresh, err := f.box.Decrypt(user.GoogleRefreshToken)
	if err != nil {
		return gmail.Credentials{}, fmt.Errorf("%w: %v", authdomain.ErrNoCredentials, err)
	}

	creds := gmail.Credentials{AccessToken: access, RefreshToken: refresh}
	if user.GoogleTokenExpiry != nil {
		creds.Expiry = *user.GoogleTokenExpiry
	}
	return creds, nil
}

func (f *GoogleClients) hooks(userID string) gmail.Hooks {
	return gmail.Hooks{
		OnTokenRefresh: func(token *oauth2.Token) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return f.storeTokens(ctx, userID, token.AccessToken, token.RefreshToken, token.Expiry)
		},
		OnUnauthorized: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := f.userRepo.ClearGoogleCredentials(ctx, userID); err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("[Auth] Failed to clear Google credentials")
				return
			}
			log.Warn().Str("user_id", userID).Msg("[Auth] Google access revoked, credentials cleared")
		},
	}
}

func (f *GoogleClients) storeTokens(ctx context.Context, userID, access, refresh string, expiry time.Time) error {
	encAccess, err := f.box.Encrypt(access)
	if err != nil {
		return err
	}
	encRefresh, err := f.box.Encrypt(refresh)
	if err != nil {
		return err
	}
	var exp *time.Time
	if !expiry.IsZero() {
		exp = &expiry
	}
	return f.userRepo.SaveGoogleTokens(ctx, userID, encAccess, encRefresh, exp)
}
