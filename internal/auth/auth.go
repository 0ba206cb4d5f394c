package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
)

type ContextKey string

const UserIDKey ContextKey = "userID"

var (
	ErrInvalidToken    = errors.New("internal/auth: invalid token")
	ErrNoUserInContext = errors.New("internal/auth: no user in context")
	ErrNoBearerToken   = errors.New("internal/auth: no bearer token in header")
)

func HashPassword(password string) (string, error) {
	hashedPw, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("internal/auth: pw hash failed: %w", err)
	}

	return hashedPw, nil
}

// CheckPasswordHash reports whether password matches hash. A malformed hash
// is an error; a mismatch is not.
func CheckPasswordHash(password, hash string) (bool, error) {
	isMatch, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("internal/auth: pw and hash comparison failed: %w", err)
	}

	return isMatch, nil
}

// MakeJWT signs an HS256 access token whose subject is the user ID.
func MakeJWT(userID int64, tokenSecret, issuer string, expiresIn time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	})

	return token.SignedString([]byte(tokenSecret))
}

// ValidateJWT returns the user ID carried by a valid, unexpired token issued
// by issuer. An empty issuer accepts any. Every failure wraps
// ErrInvalidToken.
func ValidateJWT(tokenString, tokenSecret, issuer string) (int64, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(tokenSecret), nil },
		opts...,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to parse token: %w", ErrInvalidToken, err)
	}

	if !token.Valid {
		return 0, fmt.Errorf("%w: token is invalid", ErrInvalidToken)
	}

	if claims.Subject == "" {
		return 0, fmt.Errorf("%w: subject claim is missing", ErrInvalidToken)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: malformed subject %q", ErrInvalidToken, claims.Subject)
	}

	return userID, nil
}

// Verifier checks bearer credentials against a shared HS256 secret.
type Verifier struct {
	secret string
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer}
}

// VerifyToken implements the token verification contract used by the
// real-time endpoint.
func (v *Verifier) VerifyToken(_ context.Context, token string) (int64, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	return ValidateJWT(token, v.secret, v.issuer)
}

// GetUserFromContext returns the authenticated user ID stored by the
// middleware.
func GetUserFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	if !ok || userID <= 0 {
		return 0, ErrNoUserInContext
	}

	return userID, nil
}

// WithUser returns a copy of ctx carrying userID.
func WithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetBearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func GetBearerToken(headers http.Header) (string, error) {
	scheme, token, ok := strings.Cut(headers.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrNoBearerToken
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoBearerToken
	}

	return token, nil
}
