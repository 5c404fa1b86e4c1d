// Package authpw provides email/password authentication for staff accounts.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"digiprofile/api/internal/rbac"
	"digiprofile/api/internal/store"
	"digiprofile/api/internal/util"
)

const minPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDeactivated        = errors.New("account is deactivated")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrInvalidEmail       = errors.New("email address is invalid")
	ErrInvalidRole        = errors.New("role must be viewer, editor or admin")
	ErrEmailTaken         = errors.New("email already registered")
)

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserCredentials(ctx context.Context, user store.User) error
}

type Service struct {
	store UserStore
	cost  int
}

func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// UserRequest describes a staff account to create or reset.
type UserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

func (r UserRequest) normalize() (UserRequest, error) {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	if _, err := mail.ParseAddress(r.Email); err != nil || r.Email == "" {
		return r, ErrInvalidEmail
	}
	if len(r.Password) < minPasswordLength {
		return r, ErrWeakPassword
	}
	if r.Role == "" {
		r.Role = string(rbac.RoleViewer)
	}
	if !rbac.Valid(r.Role) {
		return r, ErrInvalidRole
	}
	if r.DisplayName == "" {
		r.DisplayName, _, _ = strings.Cut(r.Email, "@")
	}
	return r, nil
}

// CreateUser adds a staff account.
func (s *Service) CreateUser(ctx context.Context, req UserRequest) (store.User, error) {
	req, err := req.normalize()
	if err != nil {
		return store.User{}, err
	}
	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return store.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := store.User{
		ID:           util.NewID("usr"),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         req.Role,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.User{}, ErrEmailTaken
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// EnsureUser creates the account or, when the email exists, resets its
// password, display name and role. It reports whether a new account was made.
func (s *Service) EnsureUser(ctx context.Context, req UserRequest) (store.User, bool, error) {
	user, err := s.CreateUser(ctx, req)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, ErrEmailTaken) {
		return store.User{}, false, err
	}

	req, _ = req.normalize()
	existing, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return store.User{}, false, fmt.Errorf("lookup user: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, false, fmt.Errorf("hash password: %w", err)
	}
	existing.PasswordHash = string(hash)
	existing.DisplayName = req.DisplayName
	existing.Role = req.Role
	if err := s.store.UpdateUserCredentials(ctx, existing); err != nil {
		return store.User{}, false, fmt.Errorf("update user: %w", err)
	}
	return existing, false, nil
}

// SignIn checks credentials and returns the account.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if user.DeactivatedAt != nil {
		return store.User{}, ErrDeactivated
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < minPasswordLength {
		return ErrWeakPassword
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	return s.store.UpdateUserCredentials(ctx, user)
}
