package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer is stamped on every operator token and required on parse.
const TokenIssuer = "staffdesk"

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the operator identity. The role is re-checked against
// RolePermissions on parse, so a token for a removed role stops working.
type Claims struct {
	UserID      string `json:"uid"`
	DisplayName string `json:"name"`
	Email       string `json:"email"`
	RoleName    string `json:"role"`
	jwt.RegisteredClaims
}

func (c Claims) UserContext() UserContext {
	return UserContext{UserID: c.UserID, DisplayName: c.DisplayName, Email: c.Email, RoleName: c.RoleName}
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func GenerateToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies signature, issuer and expiry (with 30s leeway for
// clock skew) and returns the claims. Every failure wraps ErrInvalidToken.
func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}
	if _, ok := RolePermissions[claims.RoleName]; !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.RoleName)
	}
	return claims, nil
}
