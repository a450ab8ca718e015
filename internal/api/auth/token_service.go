package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "guestdesk"

var ErrInvalidToken = errors.New("invalid token")

// JWTClaims represents the claims in our JWT tokens
type JWTClaims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs and validates access tokens. Sessions live with the
// external identity provider; only the signed claims are trusted here.
type TokenService struct {
	secretKey []byte

	AccessTokenDuration time.Duration // Default: 12 hours
}

// NewTokenService creates a new token service
func NewTokenService(secretKey string) *TokenService {
	return &TokenService{
		secretKey:           []byte(secretKey),
		AccessTokenDuration: 12 * time.Hour,
	}
}

// Issue signs an access token for the reviewer
func (ts *TokenService) Issue(r Reviewer) (string, time.Time, error) {
	if r.UserID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	if !r.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown role %q", r.Role)
	}
	now := time.Now()
	expiresAt := now.Add(ts.AccessTokenDuration)
	claims := &JWTClaims{
		Email: r.Email,
		Role:  r.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   r.UserID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken validates a JWT access token and returns the reviewer it names
func (ts *TokenService) ValidateAccessToken(tokenString string) (*Reviewer, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secretKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}
	role := claims.Role
	if role == "" {
		role = RoleStaff
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return &Reviewer{UserID: claims.Subject, Email: claims.Email, Role: role}, nil
}
