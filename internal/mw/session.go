package mw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const SessionCtxKey contextKey = "session"

const (
	SessionCookie = "session"
	CSRFHeader    = "X-CSRF-Token"
)

// SessionClaims is carried in the signed session cookie. The CSRF token itself is
// never stored, only its bcrypt hash.
type SessionClaims struct {
	CSRFHash string `json:"csrf"`
	jwt.RegisteredClaims
}

type Sessions struct {
	secret []byte
	ttl    time.Duration
	secure bool
}

func NewSessions(secret string, ttl time.Duration, secure bool) *Sessions {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, secure: secure}
}

// Issue sets a session cookie carrying a fresh CSRF token and returns that token.
// An existing session id is kept.
func (s *Sessions) Issue(w http.ResponseWriter, sessionID string) (csrfToken, id string, err error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate csrf token: %w", err)
	}
	csrfToken = hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(csrfToken), bcrypt.MinCost)
	if err != nil {
		return "", "", fmt.Errorf("hash csrf token: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		CSRFHash: string(hash),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    signed,
		Path:     "/",
		Expires:  now.Add(s.ttl),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return csrfToken, sessionID, nil
}

// Parse validates the session cookie on r.
func (s *Sessions) Parse(r *http.Request) (*SessionClaims, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, errors.New("no session")
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired session")
	}
	if claims.ID == "" {
		return nil, errors.New("session id missing")
	}
	return claims, nil
}

// RequireSession rejects requests without a valid session cookie.
func (s *Sessions) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.Parse(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), SessionCtxKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCSRF must run after RequireSession. It checks the anti-forgery header
// against the hash bound to the session.
func RequireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := SessionFrom(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		token := r.Header.Get(CSRFHeader)
		if token == "" || bcrypt.CompareHashAndPassword([]byte(claims.CSRFHash), []byte(token)) != nil {
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func SessionFrom(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(SessionCtxKey).(*SessionClaims)
	return claims, ok
}
