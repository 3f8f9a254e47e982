// Package services holds the messenger's business rules.
//
// Services sit between the HTTP/WebSocket transports and the repositories.
// They never see http.Request and never run SQL: they take domain models,
// enforce membership and role checks, and push real-time events through
// ws.EventPublisher.
package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
)

// AuthService validates the access tokens issued by the cabinet back-office.
// IssueAccessToken signs tokens with the same secret for local tooling and tests.
type AuthService interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
	IssueAccessToken(userID string, role models.Role) (string, error)
}

type authService struct {
	jwtSecret []byte
	accessExp time.Duration
}

// NewAuthService creates the HS256 token service.
func NewAuthService(jwtSecret string, accessExp time.Duration) AuthService {
	return &authService{
		jwtSecret: []byte(jwtSecret),
		accessExp: accessExp,
	}
}

// ValidateAccessToken checks signature, expiry, subject and role.
func (s *authService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", pkg.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", pkg.ErrUnauthorized)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: token has no valid subject or role", pkg.ErrUnauthorized)
	}

	return claims, nil
}

// IssueAccessToken signs a token for userID with the configured expiry.
func (s *authService) IssueAccessToken(userID string, role models.Role) (string, error) {
	if _, err := models.NewUser(userID, role); err != nil {
		return "", fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	now := time.Now()
	claims := models.TokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExp)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}
