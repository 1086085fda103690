package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

type Service struct {
	Store *Store
	now   func() time.Time
}

func NewService(store *Store) *Service {
	return &Service{Store: store, now: time.Now}
}

// Authenticate checks email and password against an active operator.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Operator, error) {
	op, err := s.Store.FindByEmail(ctx, email)
	if errors.Is(err, ErrOperatorNotFound) {
		return Operator{}, ErrInvalidLogin
	}
	if err != nil {
		return Operator{}, err
	}
	if op.Status != OperatorStatusActive {
		return Operator{}, ErrInvalidLogin
	}
	if err := CheckPassword(op.PasswordHash, password); err != nil {
		return Operator{}, ErrInvalidLogin
	}
	if err := s.Store.UpdateLastLogin(ctx, op.ID, s.now().UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("update last login failed", "operatorId", op.ID, "err", err)
	}
	return op, nil
}

// EnsureOperator creates an active operator unless one with the same email exists.
func (s *Service) EnsureOperator(ctx context.Context, email, password, displayName, role string) (string, bool, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return "", false, nil
	}
	if !ValidRole(role) {
		return "", false, ErrInvalidRole
	}
	existing, err := s.Store.FindByEmail(ctx, email)
	if err == nil {
		return existing.ID, false, nil
	}
	if !errors.Is(err, ErrOperatorNotFound) {
		return "", false, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", false, err
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = email
	}
	id, err := s.Store.Create(ctx, Operator{
		Email:        email,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: hash,
		Status:       OperatorStatusActive,
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}
