package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/spaceai-console/internal/domain"
)

var (
	// ErrInvalidToken: подпись, алгоритм или срок не прошли проверку.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrNoSession: токен валиден, но не привязан к сессии (нет jti). Такой токен нельзя отозвать.
	ErrNoSession = errors.New("auth: token is not bound to a session")
	// ErrSessionRevoked: сессия токена закрыта logout'ом или истекла в Redis.
	ErrSessionRevoked = errors.New("auth: session revoked")
)

const defaultLeeway = 5 * time.Second

// BaseValidator проверяет RS256 токены консоли. Каждый токен обязан нести сессию.
type BaseValidator struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

func NewBaseValidator(pubKey *rsa.PublicKey) *BaseValidator {
	return &BaseValidator{
		publicKey: pubKey,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(defaultLeeway),
		),
	}
}

// VerifyToken разбирает "Bearer <jwt>" и возвращает claims с идентификатором сессии.
func (v *BaseValidator) VerifyToken(tokenStr string) (*domain.CustomClaims, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))

	claims := &domain.CustomClaims{}
	token, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" {
		return nil, ErrNoSession
	}
	return claims, nil
}

// Identify: VerifyToken, сразу приведенный к текущему пользователю.
func (v *BaseValidator) Identify(tokenStr string) (domain.Identity, error) {
	claims, err := v.VerifyToken(tokenStr)
	if err != nil {
		return domain.Identity{}, err
	}
	return claims.Identity(), nil
}

// ParseRSAPublicKey превращает []byte в объект для проверки подписи
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}

// ParseRSAPrivateKey превращает []byte в объект для подписи
func ParseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("private key data is empty")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}
