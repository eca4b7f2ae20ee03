package app

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LicenseClaims are the JWT claims of a pro license token. The subject is
// the rate-limit key for video exports.
type LicenseClaims struct {
	Email string `json:"email"`
	Pro   bool   `json:"pro"`
	jwt.RegisteredClaims
}

// CreateLicenseToken signs a new HS256 license token.
func CreateLicenseToken(userId, email string, isPro bool, ttl time.Duration, secret string) (string, error) {
	now := time.Now()
	claims := LicenseClaims{
		Email: email,
		Pro:   isPro,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userId,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyLicenseToken validates a license token and returns its claims.
func VerifyLicenseToken(tokenString, secret string) (*LicenseClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &LicenseClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*LicenseClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
