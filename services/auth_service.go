package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tempmon/config"
)

const LiveScope = "live"

// AuthService signs and checks the tokens that gate the live websocket feed.
// There are no user accounts; tokens are minted by cmd/token for a named
// client such as a dashboard.
type AuthService struct {
	jwtSecret []byte
	expiryH   int
}

func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{
		jwtSecret: []byte(cfg.Secret),
		expiryH:   cfg.ExpiryHours,
	}
}

type Claims struct {
	Client string `json:"client"`
	Scope  string `json:"scope"`
	jwt.RegisteredClaims
}

func (s *AuthService) GenerateToken(client string) (string, error) {
	now := time.Now()
	claims := Claims{
		Client: client,
		Scope:  LiveScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: client,
			ExpiresAt: jwt.NewNumericDate(now.Add(
				time.Duration(s.expiryH) * time.Hour,
			)),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return s.jwtSecret, nil
		},
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Scope != LiveScope {
		return nil, errors.New("token scope does not allow the live feed")
	}
	return claims, nil
}
