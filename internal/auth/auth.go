// Package auth turns the credential a client presents on the WebSocket
// handshake into an authenticated identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"Seshat/internal/models"
)

var authLogger = slog.With("component", "auth")

var ErrUnauthenticated = errors.New("unauthenticated")

// CredentialFromRequest returns the bearer token from the Authorization
// header, else the token query parameter, else "" for an anonymous client.
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// Claims carried by chat tokens.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTResolver verifies HS256 tokens signed with a shared secret.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (r *JWTResolver) ResolveIdentity(_ context.Context, credential string) (models.Identity, error) {
	if credential == "" {
		return models.Identity{}, ErrUnauthenticated
	}
	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		authLogger.Debug("Token rejected", "error", err)
		return models.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return models.Identity{}, ErrUnauthenticated
	}
	id := models.Identity{UserID: claims.UserID, Username: strings.TrimSpace(claims.Username)}
	if id.Anonymous() || id.Username == "" {
		return models.Identity{}, fmt.Errorf("%w: token missing user claims", ErrUnauthenticated)
	}
	return id, nil
}

// IssueToken signs a token for identity that expires after ttl.
func IssueToken(secret string, identity models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   identity.UserID,
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(identity.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
