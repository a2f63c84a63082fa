package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	authdomain "fileflow-backend/internal/auth/domain"
	authdto "fileflow-backend/internal/auth/dto"
	"fileflow-backend/internal/auth/repository"
	emaildomain "fileflow-backend/internal/email/domain"
	"fileflow-backend/internal/state"
	statedomain "fileflow-backend/internal/state/domain"
	"fileflow-backend/pkg/config"
	"fileflow-backend/pkg/crypto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	// Google access tokens live for an hour when the client does not say otherwise.
	defaultGoogleTokenTTL = 3600
)

type AuthUsecase interface {
	GoogleSignIn(ctx context.Context, req *authdto.GoogleSignInRequest) (*authdto.TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*authdto.TokenResponse, error)
	// Logout revokes the refresh token and wipes the user's server-side state.
	Logout(ctx context.Context, userID, refreshToken string) error
	ValidateToken(ctx context.Context, tokenString string) (*authdomain.User, error)
	Me(ctx context.Context, userID string) (*authdomain.User, error)
	RegisterFCMToken(ctx context.Context, userID, token, deviceInfo string) error
	DeleteFCMToken(ctx context.Context, userID, token string) error
}

// MailProvider opens the user's mailbox. *GoogleClients implements it.
type MailProvider interface {
	Mail(ctx context.Context, userID string) (emaildomain.MailGateway, error)
}

// CleanupFunc removes one kind of per-user data on logout.
type CleanupFunc func(ctx context.Context, userID string) error

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	userRepo   repository.UserRepository
	fcmRepo    repository.FCMTokenRepository
	verifier   IDTokenVerifier
	box        *crypto.Box
	localState *state.LocalState
	mail       MailProvider
	config     *config.Config
	cleanups   []CleanupFunc
}

// NewAuthUsecase creates a new instance of authUsecase. mail may be nil when Gmail watch is not used.
func NewAuthUsecase(
	userRepo repository.UserRepository,
	fcmRepo repository.FCMTokenRepository,
	verifier IDTokenVerifier,
	box *crypto.Box,
	localState *state.LocalState,
	mail MailProvider,
	cfg *config.Config,
	cleanups ...CleanupFunc,
) AuthUsecase {
	return &authUsecase{
		userRepo:   userRepo,
		fcmRepo:    fcmRepo,
		verifier:   verifier,
		box:        box,
		localState: localState,
		mail:       mail,
		config:     cfg,
		cleanups:   cleanups,
	}
}

func (u *authUsecase) GoogleSignIn(ctx context.Context, req *authdto.GoogleSignInRequest) (*authdto.TokenResponse, error) {
	identity, err := u.verifier.Verify(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}
	if !identity.EmailVerified {
		return nil, authdomain.ErrEmailNotVerified
	}

	user, err := u.userRepo.FindByEmail(ctx, identity.Email)
	if err != nil {
		return nil, err
	}
	isNew := user == nil
	if isNew {
		user = &authdomain.User{Email: identity.Email}
	}
	user.Name = identity.Name
	user.AvatarURL = identity.Picture
	user.GoogleSub = identity.Subject

	if err := u.applyGoogleTokens(user, req); err != nil {
		return nil, fmt.Errorf("failed to encrypt Google tokens: %w", err)
	}

	if isNew {
		err = u.userRepo.Create(ctx, user)
	} else {
		err = u.userRepo.Update(ctx, user)
	}
	if err != nil {
		return nil, err
	}

	if err := u.localState.SetUserInfo(ctx, &statedomain.UserInfo{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("[Auth] Failed to store user info")
	}

	u.startWatch(ctx, user)

	return u.generateTokens(ctx, user)
}

// applyGoogleTokens overwrites stored tokens only with the ones the client sent.
func (u *authUsecase) applyGoogleTokens(user *authdomain.User, req *authdto.GoogleSignInRequest) error {
	if req.AccessToken != "" {
		enc, err := u.box.Encrypt(req.AccessToken)
		if err != nil {
			return err
		}
		expiresIn := req.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = defaultGoogleTokenTTL
		}
		expiry := time.Now().Add(time.Duration(expiresIn) * time.Second)
		user.GoogleAccessToken = enc
		user.GoogleTokenExpiry = &expiry
	}
	if req.RefreshToken != "" {
		enc, err := u.box.Encrypt(req.RefreshToken)
		if err != nil {
			return err
		}
		user.GoogleRefreshToken = enc
	}
	return nil
}

func (u *authUsecase) startWatch(ctx context.Context, user *authdomain.User) {
	if u.mail == nil || u.config.GooglePubSubTopic == "" || !user.HasGoogleCredentials() {
		return
	}
	mail, err := u.mail.Mail(ctx, user.ID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("[Auth] Cannot open mailbox for watch")
		return
	}
	historyID, err := mail.Watch(ctx, u.config.GooglePubSubTopic)
	if err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("[Auth] Gmail watch failed")
		return
	}
	log.Info().Str("user_id", user.ID).Str("history_id", historyID).Msg("[Auth] Gmail watch started")
}

func (u *authUsecase) RefreshToken(ctx context.Context, refreshToken string) (*authdto.TokenResponse, error) {
	claims, err := u.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	stored, err := u.userRepo.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.ExpiresAt.Before(time.Now()) {
		return nil, authdomain.ErrTokenExpired
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" || userID != stored.UserID {
		return nil, authdomain.ErrInvalidToken
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, authdomain.ErrUserNotFound
	}

	// Rotate: the presented token cannot be used twice.
	if err := u.userRepo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return nil, err
	}
	return u.generateTokens(ctx, user)
}

func (u *authUsecase) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken != "" {
		stored, err := u.userRepo.FindRefreshToken(ctx, refreshToken)
		if err != nil {
			return err
		}
		if stored != nil && stored.UserID == userID {
			if err := u.userRepo.DeleteRefreshToken(ctx, refreshToken); err != nil {
				return err
			}
		}
	}

	var errs []error
	if err := u.localState.Clear(ctx, userID); err != nil {
		errs = append(errs, err)
	}
	for _, cleanup := range u.cleanups {
		if err := cleanup(ctx, userID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("[Auth] Logout cleanup incomplete")
		return err
	}
	log.Info().Str("user_id", userID).Msg("[Auth] User logged out")
	return nil
}

func (u *authUsecase) ValidateToken(ctx context.Context, tokenString string) (*authdomain.User, error) {
	claims, err := u.parse(tokenString, tokenTypeAccess)
	if err != nil {
		return nil, err
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return nil, authdomain.ErrInvalidToken
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, authdomain.ErrUserNotFound
	}
	return user, nil
}

func (u *authUsecase) Me(ctx context.Context, userID string) (*authdomain.User, error) {
	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, authdomain.ErrUserNotFound
	}
	return user, nil
}

func (u *authUsecase) RegisterFCMToken(ctx context.Context, userID, token, deviceInfo string) error {
	return u.fcmRepo.SaveToken(ctx, userID, token, deviceInfo)
}

func (u *authUsecase) DeleteFCMToken(ctx context.Context, userID, token string) error {
	return u.fcmRepo.DeleteToken(ctx, userID, token)
}

func (u *authUsecase) parse(tokenString, tokenType string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(u.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, authdomain.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, authdomain.ErrInvalidToken
	}
	if t, _ := claims["type"].(string); t != tokenType {
		return nil, authdomain.ErrInvalidToken
	}
	return claims, nil
}

func (u *authUsecase) generateTokens(ctx context.Context, user *authdomain.User) (*authdto.TokenResponse, error) {
	accessToken, err := u.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := u.generateRefreshToken(user)
	if err != nil {
		return nil, err
	}

	refreshTokenEntity := &authdomain.RefreshToken{
		Token:     refreshToken,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(u.config.JWTRefreshExpiry),
	}
	if err := u.userRepo.ReplaceRefreshToken(ctx, refreshTokenEntity); err != nil {
		return nil, err
	}

	return &authdto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

func (u *authUsecase) generateAccessToken(user *authdomain.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"type":    tokenTypeAccess,
		"exp":     time.Now().Add(u.config.JWTAccessExpiry).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.config.JWTSecret))
}

func (u *authUsecase) generateRefreshToken(user *authdomain.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"token_id": uuid.New().String(),
		"type":     tokenTypeRefresh,
		"exp":      time.Now().Add(u.config.JWTRefreshExpiry).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.config.JWTSecret))
}
