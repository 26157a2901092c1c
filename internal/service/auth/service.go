// Package auth implements signup, login, refresh-token rotation and profile management.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spmagent/internal/apperr"
	"spmagent/internal/model"
	"spmagent/internal/repository"
	"spmagent/pkg/util"
)

const detailBadLogin = "Invalid email or password."

// UserStore is the subset of the user repository the service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error)
}

// SessionStore tracks which refresh tokens are still usable.
type SessionStore interface {
	Store(ctx context.Context, userID, jti string, ttl time.Duration) error
	Consume(ctx context.Context, userID, jti string) (bool, error)
	RevokeAll(ctx context.Context, userID string) error
}

type SignupInput struct {
	Email    string
	Password string
	FullName string
}

// Response is returned by signup, login and refresh.
type Response struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	User         UserSummary `json:"user"`
}

type UserSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

type Service struct {
	users    UserStore
	sessions SessionStore
	tokens   *util.TokenIssuer
	logger   *zap.Logger
}

func NewService(users UserStore, sessions SessionStore, tokens *util.TokenIssuer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
	}
}

// Signup registers a user and logs them in.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Response, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < 6 {
		return nil, apperr.Validation("Password must be at least 6 characters.")
	}
	name := strings.TrimSpace(in.FullName)
	if n := utf8.RuneCountInString(name); n < 1 || n > 100 {
		return nil, apperr.Validation("Full name must be between 1 and 100 characters.")
	}

	hash, err := util.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FullName:     name,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, &apperr.ConflictError{Detail: "Email is already registered."}
		}
		return nil, err
	}

	s.logger.Info("User signed up", zap.String("user_id", u.ID))
	return s.issue(ctx, u)
}

// Login checks credentials. Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Response, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, &apperr.AuthError{Reason: "unknown email", Detail: detailBadLogin}
	}
	if err != nil {
		return nil, err
	}
	if !util.CheckPassword(password, u.PasswordHash) {
		return nil, &apperr.AuthError{Reason: "wrong password", Detail: detailBadLogin}
	}
	return s.issue(ctx, u)
}

// Refresh exchanges a refresh token for a new pair. The presented token is consumed, so
// replaying it fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Response, error) {
	claims, err := s.tokens.Parse(refreshToken, util.TokenTypeRefresh)
	if err != nil {
		return nil, &apperr.AuthError{Reason: err.Error(), Detail: "Invalid or expired refresh token."}
	}

	ok, err := s.sessions.Consume(ctx, claims.Subject, claims.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("Refresh token reused or revoked", zap.String("user_id", claims.Subject))
		return nil, &apperr.AuthError{Reason: "refresh token revoked", Detail: "Invalid or expired refresh token."}
	}

	u, err := s.users.FindByID(ctx, claims.Subject)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, &apperr.AuthError{Reason: "user gone"}
	}
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, u)
}

// Logout revokes every refresh session of the user. Access tokens expire on their own.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.sessions.RevokeAll(ctx, userID)
}

// Authenticate validates an access token and returns its claims.
func (s *Service) Authenticate(token string) (*util.Claims, error) {
	if token == "" {
		return nil, &apperr.AuthError{Reason: "missing token"}
	}
	claims, err := s.tokens.Parse(token, util.TokenTypeAccess)
	if err != nil {
		return nil, &apperr.AuthError{Reason: err.Error()}
	}
	return claims, nil
}

func (s *Service) Me(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, &apperr.NotFoundError{Resource: "user"}
	}
	return u, err
}

// UpdateMe validates and applies a partial profile update.
func (s *Service) UpdateMe(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.User, error) {
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		if n := utf8.RuneCountInString(name); n < 1 || n > 100 {
			return nil, apperr.Validation("Full name must be between 1 and 100 characters.")
		}
		upd.FullName = &name
	}
	if upd.SkillLevel != nil && !oneOf(*upd.SkillLevel, "junior", "medium", "senior") {
		return nil, apperr.Validation("Skill level must be one of: junior, medium, senior.")
	}
	if upd.PreferredPace != nil && !oneOf(*upd.PreferredPace, "relaxed", "medium", "aggressive") {
		return nil, apperr.Validation("Preferred pace must be one of: relaxed, medium, aggressive.")
	}
	if h := upd.AvailableHoursPerDay; h != nil && (*h < 0.5 || *h > 24) {
		return nil, apperr.Validation("Available hours per day must be between 0.5 and 24.")
	}

	u, err := s.users.UpdateProfile(ctx, userID, upd)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, &apperr.NotFoundError{Resource: "user"}
	}
	return u, err
}

func (s *Service) issue(ctx context.Context, u *model.User) (*Response, error) {
	access, err := s.tokens.IssueAccess(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, jti, err := s.tokens.IssueRefresh(u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	if err := s.sessions.Store(ctx, u.ID, jti, s.tokens.RefreshTTL()); err != nil {
		return nil, err
	}

	return &Response{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		User:         UserSummary{ID: u.ID, Email: u.Email, FullName: u.FullName},
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", apperr.Validation("A valid email address is required.")
	}
	return strings.ToLower(addr.Address), nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
