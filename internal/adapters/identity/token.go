package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Poker/internal/domain"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
	ErrNoSecret     = errors.New("jwt secret is empty")
)

const issuer = "poker"

// Claims carry a registered user. Subject is the durable user ID.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secretKey []byte
	expire    time.Duration
}

func NewTokenService(secretKey string, expire time.Duration) (*TokenService, error) {
	if secretKey == "" {
		return nil, ErrNoSecret
	}
	if expire <= 0 {
		expire = 24 * time.Hour
	}
	return &TokenService{secretKey: []byte(secretKey), expire: expire}, nil
}

// Issue signs a token for p. The account system normally does this; the
// server uses it for tests and local development.
func (s *TokenService) Issue(p domain.Profile) (string, error) {
	now := time.Now()
	claims := &Claims{
		Name:    p.DisplayName,
		Picture: p.ImageURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(p.UserID),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expire)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Profile converts verified claims into a durable profile. A token without
// a usable name falls back to fallbackName.
func (c *Claims) Profile(fallbackName string) (domain.Profile, error) {
	p, err := domain.NewProfile(domain.UserID(c.Subject), c.Name, c.Picture, false)
	if errors.Is(err, domain.ErrDisplayNameEmpty) || errors.Is(err, domain.ErrDisplayNameTooLong) {
		return domain.NewProfile(domain.UserID(c.Subject), fallbackName, c.Picture, false)
	}
	return p, err
}
