package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims: полезная нагрузка RS256 токена. jti (RegisteredClaims.ID) хранит идентификатор сессии.
type CustomClaims struct {
	UserID   string          `json:"user_id"`
	Username string          `json:"username"`
	Scopes   map[string]bool `json:"scopes"` // "admin": true или "support": true
	jwt.RegisteredClaims
}

// Identity: текущий пользователь запроса (currentUser).
type Identity struct {
	UserID    string
	Username  string
	SessionID string
	Scopes    map[string]bool
}

func (c *CustomClaims) Identity() Identity {
	return Identity{
		UserID:    c.UserID,
		Username:  c.Username,
		SessionID: c.ID,
		Scopes:    c.Scopes,
	}
}

func (i Identity) HasScope(scope string) bool {
	return i.Scopes["admin"] || i.Scopes[scope]
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
	SessionID   string `json:"session_id"`
}

type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отправляем на фронт
	Role         string          `json:"role"`
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
