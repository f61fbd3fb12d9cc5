// Package auth issues and validates the bearer JWTs that identify a
// subject's user ID and tier to the API layer.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hannah-ric/esg-scraper/internal/apperr"
	"github.com/hannah-ric/esg-scraper/internal/governor"
)

// DeriveUserID computes the stable opaque id for a registering user from
// their email: the hex SHA-256 digest of the lowercased, trimmed address.
func DeriveUserID(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// Claims is the payload embedded in every issued token.
type Claims struct {
	UserID string         `json:"user_id"`
	Email  string         `json:"email"`
	Tier   governor.Tier  `json:"tier"`
	jwt.RegisteredClaims
}

// Service issues and validates tokens against a shared HMAC secret.
type Service struct {
	secret []byte
	ttl    time.Duration
}

func New(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl}
}

// IssueToken mints a signed token for the given subject.
func (s *Service) IssueToken(userID, email string, tier governor.Tier) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Tier:   tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    "esg-disclosure-analyzer",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperr.Internal("sign token failed", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a bearer token, returning its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, apperr.AuthN("invalid or expired token")
	}
	if !token.Valid {
		return nil, apperr.AuthN("invalid token")
	}
	return claims, nil
}
