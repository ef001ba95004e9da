// Package session issues the signed cart-session tokens browsers carry in
// the X-Cart-Token header.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	Header     = "X-Cart-Token"
	DefaultTTL = 30 * 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid cart token")
	ErrNoSecret     = errors.New("cart token secret not configured")
)

type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue starts a new cart session and returns its id and token.
func (i *Issuer) Issue() (string, string, error) {
	sid := uuid.NewString()
	now := i.now()
	claims := Claims{
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign cart token: %w", err)
	}
	return sid, token, nil
}

// Parse validates token and returns the cart session id it carries.
func (i *Issuer) Parse(token string) (string, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.SessionID == "" {
		return "", fmt.Errorf("%w: no session id", ErrInvalidToken)
	}
	return claims.SessionID, nil
}
