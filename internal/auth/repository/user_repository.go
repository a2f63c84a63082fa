package repository

import (
	"context"
	"errors"
	"time"

	authdomain "fileflow-backend/internal/auth/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRepository interface {
	Create(ctx context.Context, user *authdomain.User) error
	FindByEmail(ctx context.Context, email string) (*authdomain.User, error)
	FindByID(ctx context.Context, id string) (*authdomain.User, error)
	Update(ctx context.Context, user *authdomain.User) error
	// ListGoogleLinked returns users that still hold Google credentials.
	ListGoogleLinked(ctx context.Context) ([]*authdomain.User, error)
	SaveGoogleTokens(ctx context.Context, userID, accessToken, refreshToken string, expiry *time.Time) error
	ClearGoogleCredentials(ctx context.Context, userID string) error

	ReplaceRefreshToken(ctx context.Context, token *authdomain.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*authdomain.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
}

// userRepository implements UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new instance of userRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{
		db: db,
	}
}

func (r *userRepository) Create(ctx context.Context, user *authdomain.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*authdomain.User, error) {
	var user authdomain.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*authdomain.User, error) {
	var user authdomain.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *authdomain.User) error {
	user.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepository) ListGoogleLinked(ctx context.Context) ([]*authdomain.User, error) {
	var users []*authdomain.User
	err := r.db.WithContext(ctx).
		Where("google_refresh_token <> '' OR google_access_token <> ''").
		Order("created_at ASC").
		Find(&users).Error
	return users, err
}

// SaveGoogleTokens stores already encrypted tokens. An empty refresh token keeps the stored one.
func (r *userRepository) SaveGoogleTokens(ctx context.Context, userID, accessToken, refreshToken string, expiry *time.Time) error {
	updates := map[string]interface{}{
		"google_access_token": accessToken,
		"google_token_expiry": expiry,
		"updated_at":          time.Now(),
	}
	if refreshToken != "" {
		updates["google_refresh_token"] = refreshToken
	}
	return r.db.WithContext(ctx).Model(&authdomain.User{}).Where("id = ?", userID).Updates(updates).Error
}

func (r *userRepository) ClearGoogleCredentials(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Model(&authdomain.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"google_access_token":  "",
		"google_refresh_token": "",
		"google_token_expiry":  nil,
		"updated_at":           time.Now(),
	}).Error
}

// ReplaceRefreshToken adds a new refresh token for the user without deleting existing ones,
// so each device keeps its own session. Expired tokens are cleaned up on the way.
func (r *userRepository) ReplaceRefreshToken(ctx context.Context, token *authdomain.RefreshToken) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND expires_at < ?", token.UserID, time.Now()).Delete(&authdomain.RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	})
}

func (r *userRepository) FindRefreshToken(ctx context.Context, token string) (*authdomain.RefreshToken, error) {
	var refreshToken authdomain.RefreshToken
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&refreshToken).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refreshToken, nil
}

func (r *userRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&authdomain.RefreshToken{}).Error
}
