package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("refresh token expired")
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailNotVerified = errors.New("google email is not verified")

	// ErrNoCredentials means the user has no usable Google tokens and must sign in again.
	ErrNoCredentials = errors.New("google credentials missing")
)

type User struct {
	ID        string `json:"id" gorm:"primaryKey"`
	Email     string `json:"email" gorm:"uniqueIndex;not null"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	GoogleSub string `json:"-" gorm:"index"`

	// Google tokens are stored encrypted.
	GoogleAccessToken  string     `json:"-" gorm:"type:text"`
	GoogleRefreshToken string     `json:"-" gorm:"type:text"`
	GoogleTokenExpiry  *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) HasGoogleCredentials() bool {
	return u.GoogleAccessToken != "" || u.GoogleRefreshToken != ""
}

type RefreshToken struct {
	Token     string    `json:"token" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GoogleIdentity is the verified content of a Google ID token.
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// FCMToken is one push-capable device of a user. Tokens are unique across users;
// registering a token again moves it to the caller.
type FCMToken struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"index;not null"`
	Token      string    `json:"-" gorm:"uniqueIndex;not null"`
	DeviceInfo string    `json:"device_info"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
