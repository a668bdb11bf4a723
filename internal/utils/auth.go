package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of tokens issued on register and login.
const DefaultTokenTTL = 30 * 24 * time.Hour

// GeneratePhoneToken issues an HS256 token whose "phone" claim names the
// account identity.
func GeneratePhoneToken(phone, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"phone": phone,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and validates a token
func ValidateToken(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// ValidatePhoneToken validates a token and returns its phone claim.
func ValidatePhoneToken(tokenString, secret string) (string, error) {
	if tokenString == "" {
		return "", errors.New("missing token")
	}
	claims, err := ValidateToken(tokenString, secret)
	if err != nil {
		return "", err
	}
	phone, _ := claims["phone"].(string)
	if phone == "" {
		return "", errors.New("token has no phone claim")
	}
	return phone, nil
}
