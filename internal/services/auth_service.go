// Package services – AuthService
//
// This file implements student accounts: signup with bcrypt-hashed
// credentials, login, and the signed session tokens carried in the session
// cookie. Tokens are HS256 JWTs whose "uid" claim holds the user id.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/counselor-chat/internal/domain"
	"github.com/tbourn/counselor-chat/internal/repo"
)

const (
	minUsernameRunes = 3
	minPasswordRunes = 6
	// bcrypt ignores input past 72 bytes and the library rejects it outright.
	maxPasswordBytes = 72
	minClassOf       = 1900
	maxClassOf       = 2200
)

// Claims is the session token payload.
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// SignUpInput carries the signup form.
type SignUpInput struct {
	Username        string
	Password        string
	ConfirmPassword string
	ClassOf         int
	// IP is the client address recorded for auditing.
	IP string
}

// AuthService manages accounts and session tokens.
type AuthService struct {
	DB *gorm.DB

	// Secret signs session tokens.
	Secret []byte
	// TTL is the session token lifetime.
	TTL time.Duration
	// Quota supplies the calendar date new accounts start their window on.
	Quota *QuotaService
	// Retry bounds retries on lock contention.
	Retry repo.RetryPolicy
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// SignUp validates the form and creates the account. The daily window starts
// today with a zero counter.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "SignUp")
	defer span.End()

	username := norm.NFC.String(strings.TrimSpace(in.Username))
	if utf8.RuneCountInString(username) < minUsernameRunes {
		return nil, ErrUsernameTooShort
	}
	if utf8.RuneCountInString(in.Password) < minPasswordRunes {
		return nil, ErrPasswordTooShort
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, ErrPasswordTooLong
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	if in.ClassOf < minClassOf || in.ClassOf > maxClassOf {
		return nil, ErrInvalidClassOf
	}

	cost := s.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), cost)
	if err != nil {
		return nil, err
	}

	today := s.Quota.Today()
	u := &domain.User{
		Username:        username,
		PasswordHash:    string(hash),
		ClassOf:         in.ClassOf,
		MessagesToday:   0,
		LastMessageDate: &today,
	}
	if ip := strings.TrimSpace(in.IP); ip != "" {
		u.IPAddress = &ip
	}

	err = repo.WithRetry(ctx, s.Retry, func() error {
		u.ID = 0
		return repo.CreateUser(ctx, s.DB, u)
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("user.id", u.ID))
	return u, nil
}

// Login verifies credentials. Unknown usernames and wrong passwords are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Login")
	defer span.End()

	u, err := repo.GetUserByUsername(ctx, s.DB, norm.NFC.String(strings.TrimSpace(username)))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	span.SetAttributes(attribute.Int64("user.id", u.ID))
	return u, nil
}

// IssueToken signs a session token for the user and returns its expiry.
func (s *AuthService) IssueToken(userID int64) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.TTL)
	claims := &Claims{
		UserID: strconv.FormatInt(userID, 10),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// ParseToken verifies a session token and returns the user id it carries.
func (s *AuthService) ParseToken(tokenStr string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, ErrInvalidToken
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseInt(c.UserID, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Authenticate resolves a session token to its user.
func (s *AuthService) Authenticate(ctx context.Context, tokenStr string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Authenticate",
		trace.WithAttributes(attribute.Bool("token.present", tokenStr != "")))
	defer span.End()

	id, err := s.ParseToken(tokenStr)
	if err != nil {
		return nil, err
	}
	u, err := repo.GetUserByID(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}
