package relay

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("authentication token is missing")
	ErrInvalidToken = errors.New("invalid authentication token")
)

// AuthManager resolves the identity a handshake claims. Without a secret it
// trusts the userId query parameter; with one it requires a signed token and
// takes the identity from its claims.
type AuthManager struct {
	jwtSecret []byte
}

// NewAuthManager creates a new auth manager
func NewAuthManager(jwtSecret string) *AuthManager {
	return &AuthManager{
		jwtSecret: []byte(jwtSecret),
	}
}

// Enabled reports whether token verification is configured
func (a *AuthManager) Enabled() bool {
	return len(a.jwtSecret) > 0
}

// ResolveIdentity returns the identity for a websocket handshake. The value
// may be empty or the undefined placeholder; the router decides whether it
// can be registered.
func (a *AuthManager) ResolveIdentity(r *http.Request) (string, error) {
	if !a.Enabled() {
		return r.URL.Query().Get("userId"), nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		// Browsers cannot set headers on websocket upgrades
		authHeader = r.URL.Query().Get("token")
	}
	if authHeader == "" {
		return "", ErrMissingToken
	}

	tokenString, err := a.ExtractTokenFromHeader(authHeader)
	if err != nil {
		return "", err
	}
	return a.ValidateToken(tokenString)
}

// ValidateToken validates a JWT token and returns the user ID
func (a *AuthManager) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	if userID, ok := claims["user_id"].(string); ok && userID != "" {
		return userID, nil
	}
	// Try "sub" (subject) as fallback
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("%w: user_id not found in token", ErrInvalidToken)
}

// ExtractTokenFromHeader extracts JWT token from Authorization header
func (a *AuthManager) ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingToken
	}

	// Support both "Bearer <token>" and just "<token>"
	parts := strings.Fields(authHeader)
	switch len(parts) {
	case 1:
		return parts[0], nil
	case 2:
		if !strings.EqualFold(parts[0], "bearer") {
			return "", fmt.Errorf("%w: invalid authorization header format", ErrInvalidToken)
		}
		return parts[1], nil
	}
	return "", fmt.Errorf("%w: invalid authorization header format", ErrInvalidToken)
}
