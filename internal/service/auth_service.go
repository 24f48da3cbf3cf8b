package service

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"notes-sync-server/internal/domain"
	"notes-sync-server/pkg/hash"
	"notes-sync-server/pkg/jwt"
)

// AuthService authenticates the single configured user and issues bearer
// tokens for them.
type AuthService struct {
	username          string
	passwordHash      string
	jwtSecret         string
	jwtExpiration     time.Duration
	refreshExpiration time.Duration
}

// NewAuthService accepts either a plain password or an existing bcrypt hash.
func NewAuthService(username, password, jwtSecret string, jwtExp, refreshExp time.Duration) (*AuthService, error) {
	passwordHash := password
	if !isBcryptHash(password) {
		h, err := hash.Hash(password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash configured password: %w", err)
		}
		passwordHash = h
	}

	return &AuthService{
		username:          username,
		passwordHash:      passwordHash,
		jwtSecret:         jwtSecret,
		jwtExpiration:     jwtExp,
		refreshExpiration: refreshExp,
	}, nil
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

func (s *AuthService) Login(req *domain.LoginRequest) (*domain.LoginResponse, error) {
	usernameOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.username)) == 1
	// Always run bcrypt so a wrong username costs the same as a wrong password.
	passwordErr := hash.Compare(s.passwordHash, req.Password)
	if !usernameOK || passwordErr != nil {
		return nil, ErrInvalidCredentials
	}

	accessToken, err := jwt.GenerateToken(s.username, s.jwtExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := jwt.GenerateRefreshToken(s.username, s.refreshExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &domain.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.jwtExpiration.Seconds()),
	}, nil
}

func (s *AuthService) RefreshToken(req *domain.RefreshTokenRequest) (*domain.TokenResponse, error) {
	claims, err := jwt.ValidateToken(req.RefreshToken, s.jwtSecret)
	if err != nil || claims.TokenType != jwt.TokenTypeRefresh || claims.UserID != s.username {
		return nil, ErrInvalidToken
	}

	accessToken, err := jwt.GenerateToken(claims.UserID, s.jwtExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.jwtExpiration.Seconds()),
	}, nil
}

// ValidateToken accepts only access tokens issued for the configured user.
func (s *AuthService) ValidateToken(token string) (*jwt.Claims, error) {
	claims, err := jwt.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TokenType != jwt.TokenTypeAccess || claims.UserID != s.username {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
