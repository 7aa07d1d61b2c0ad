package auth

import (
	"errors"
	"fmt"
	"time"

	"zeroep-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("token de sessão inválido ou expirado")

// SessionCredential é o token curto que liga uma Identity a uma expiração
type SessionCredential struct {
	Token     string          `json:"token"`
	Identity  models.Identity `json:"identity"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// TokenService lida com a lógica de JWT
type TokenService struct {
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewTokenService cria um novo serviço de token
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("segredo JWT não pode ser vazio")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("duração da sessão deve ser positiva")
	}
	return &TokenService{
		jwtSecret: []byte(secret),
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// NewToken emite uma credencial nova. Nunca renova uma existente.
func (s *TokenService) NewToken(identity models.Identity) (SessionCredential, error) {
	now := s.now()
	exp := now.Add(s.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   identity.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return SessionCredential{}, err
	}

	return SessionCredential{
		Token:     signed,
		Identity:  identity,
		// JWT guarda segundos inteiros
		ExpiresAt: exp.Truncate(time.Second),
	}, nil
}

// ValidateToken verifica assinatura e expiração e retorna a Identity do 'sub'
func (s *TokenService) ValidateToken(tokenString string) (models.Identity, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	identity := models.NormalizeIdentity(claims.Subject)
	if identity == "" {
		return "", ErrInvalidToken
	}
	return identity, nil
}
