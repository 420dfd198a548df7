// Package device identifies anonymous viewers. A device is a random id
// carried in a signed cookie; there are no accounts and no credentials.
package device

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultCookieName = "device_token"
	DefaultTTL        = 365 * 24 * time.Hour
	issuer            = "course-platform"
)

type ctxKeyDeviceID struct{}

func IDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyDeviceID{}).(string)
	return v, ok && v != ""
}

// WithID injects a device id into context. Useful for testing.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyDeviceID{}, id)
}

type Claims struct {
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 device tokens.
type Tokens struct {
	Secret []byte
	TTL    time.Duration
}

func (t Tokens) Issue(deviceID string, now time.Time) (string, error) {
	if len(t.Secret) == 0 {
		return "", errors.New("device secret is empty")
	}
	ttl := t.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   deviceID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
}

func (t Tokens) Parse(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return t.Secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, errors.New("invalid device id")
	}
	return claims, nil
}

// Middleware resolves the device from the cookie, minting a fresh device
// (and cookie) when it is missing, expired or tampered with.
func Middleware(tokens Tokens, cookieName string, log *zap.Logger) func(next http.Handler) http.Handler {
	if strings.TrimSpace(cookieName) == "" {
		cookieName = DefaultCookieName
	}
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(cookieName); err == nil {
				if claims, err := tokens.Parse(c.Value); err == nil {
					next.ServeHTTP(w, r.WithContext(WithID(r.Context(), claims.Subject)))
					return
				}
			}

			id := uuid.NewString()
			now := time.Now()
			token, err := tokens.Issue(id, now)
			if err != nil {
				log.Error("device token issue failed", zap.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			ttl := tokens.TTL
			if ttl <= 0 {
				ttl = DefaultTTL
			}
			http.SetCookie(w, &http.Cookie{
				Name:     cookieName,
				Value:    token,
				Path:     "/",
				Expires:  now.Add(ttl),
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
		})
	}
}
