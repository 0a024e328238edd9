package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gogotex/gogotex/backend/device-auth/internal/config"
	"github.com/gogotex/gogotex/backend/device-auth/internal/models"
)

// SigningError means a session token could not be produced. It is never
// retried.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string { return "sign session token: " + e.Err.Error() }

func (e *SigningError) Unwrap() error { return e.Err }

// Claims carried by a session token
type Claims struct {
	Name           string `json:"name"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	Provider       string `json:"provider"`
	CreationTime   int64  `json:"creation_time"`
	LastSignInTime int64  `json:"last_sign_in_time"`
	LastUpdated    int64  `json:"last_updated"`
	jwt.RegisteredClaims
}

// Credential is the session handed back to the client
type Credential struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Issuer signs and verifies HS256 session tokens
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(cfg config.JWTConfig) *Issuer {
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: ttl, now: time.Now}
}

// Issue creates a signed session token for the user
func (i *Issuer) Issue(u *models.User) (*Credential, error) {
	if len(i.secret) == 0 {
		return nil, &SigningError{Err: errors.New("no signing secret configured")}
	}
	if u == nil || u.ID == "" {
		return nil, &SigningError{Err: errors.New("user without id")}
	}
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Name:           u.DisplayName,
		AvatarURL:      u.AvatarURL,
		Provider:       u.Provider,
		CreationTime:   u.CreationTime.Unix(),
		LastSignInTime: u.LastSignInTime.Unix(),
		LastUpdated:    u.LastUpdated.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := jt.SignedString(i.secret)
	if err != nil {
		return nil, &SigningError{Err: err}
	}
	return &Credential{AccessToken: signed, TokenType: "Bearer", ExpiresAt: exp}, nil
}

// Parse validates signature, expiry and issuer of a session token
func (i *Issuer) Parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return nil, errors.New("invalid session token: missing exp")
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid session token: missing sub")
	}
	return &claims, nil
}
