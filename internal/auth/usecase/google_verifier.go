package usecase

import (
	"context"
	"fmt"
	"time"

	authdomain "fileflow-backend/internal/auth/domain"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*authdomain.GoogleIdentity, error)
}

// GoogleVerifier checks Google ID tokens against a cached copy of Google's signing keys.
type GoogleVerifier struct {
	jwksURL  string
	audience string
	cache    *jwk.Cache
}

// NewGoogleVerifier registers the key set URL; keys are fetched on first use and
// refreshed in the background by the cache.
func NewGoogleVerifier(ctx context.Context, jwksURL, audience string) (*GoogleVerifier, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	return &GoogleVerifier{jwksURL: jwksURL, audience: audience, cache: cache}, nil
}

func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*authdomain.GoogleIdentity, error) {
	keySet, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Google keys: %w", err)
	}

	token, err := jwt.Parse([]byte(idToken),
		jwt.WithKeySet(keySet),
		jwt.WithValidate(true),
		jwt.WithAudience(v.audience),
		jwt.WithAcceptableSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authdomain.ErrInvalidToken, err)
	}
	if !googleIssuers[token.Issuer()] {
		return nil, fmt.Errorf("%w: unexpected issuer %q", authdomain.ErrInvalidToken, token.Issuer())
	}
	if token.Subject() == "" {
		return nil, fmt.Errorf("%w: missing subject", authdomain.ErrInvalidToken)
	}

	identity := &authdomain.GoogleIdentity{
		Subject:       token.Subject(),
		Email:         stringClaim(token, "email"),
		Name:          stringClaim(token, "name"),
		Picture:       stringClaim(token, "picture"),
		EmailVerified: boolClaim(token, "email_verified"),
	}
	if identity.Email == "" {
		return nil, fmt.Errorf("%w: missing email", authdomain.ErrInvalidToken)
	}
	return identity, nil
}

func stringClaim(token jwt.Token, name string) string {
	v, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Google sends email_verified as a bool, older tokens as the string "true".
func boolClaim(token jwt.Token, name string) bool {
	v, ok := token.Get(name)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}
