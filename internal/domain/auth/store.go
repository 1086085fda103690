package auth

import (
	"context"
	"errors"
	"strings"

	"staffdesk/internal/platform/recordstore"
)

const operatorsPath = "operators"

var (
	ErrOperatorNotFound = errors.New("operator not found")
	ErrInvalidLogin     = errors.New("invalid credentials")
	ErrInvalidRole      = errors.New("unknown role")
)

const (
	OperatorStatusActive   = "active"
	OperatorStatusDisabled = "disabled"
)

type Operator struct {
	ID           string `json:"-"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	Role         string `json:"role"`
	PasswordHash string `json:"passwordHash"`
	Status       string `json:"status"`
	CreatedAt    string `json:"createdAt,omitempty"`
	LastLogin    string `json:"lastLogin,omitempty"`
}

// Store keeps operators under operators/{uid} in the record store.
type Store struct {
	Records recordstore.Store
}

func NewStore(records recordstore.Store) *Store {
	return &Store{Records: records}
}

func (s *Store) FindByEmail(ctx context.Context, email string) (Operator, error) {
	node, err := s.Records.Read(ctx, operatorsPath)
	if err != nil {
		return Operator{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, child := range node.Children() {
		var op Operator
		if err := child.Decode(&op); err != nil {
			return Operator{}, err
		}
		if strings.ToLower(op.Email) == email {
			op.ID = child.Key()
			return op, nil
		}
	}
	return Operator{}, ErrOperatorNotFound
}

func (s *Store) Get(ctx context.Context, id string) (Operator, error) {
	if err := recordstore.ValidateKey(id); err != nil {
		return Operator{}, ErrOperatorNotFound
	}
	node, err := s.Records.Read(ctx, recordstore.Join(operatorsPath, id))
	if err != nil {
		return Operator{}, err
	}
	if !node.Exists() {
		return Operator{}, ErrOperatorNotFound
	}
	var op Operator
	if err := node.Decode(&op); err != nil {
		return Operator{}, err
	}
	op.ID = id
	return op, nil
}

func (s *Store) Create(ctx context.Context, op Operator) (string, error) {
	id, err := s.Records.Push(ctx, operatorsPath)
	if err != nil {
		return "", err
	}
	if err := s.Records.Update(ctx, recordstore.Updates{recordstore.Join(operatorsPath, id): op}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, id, at string) error {
	return s.Records.Update(ctx, recordstore.Updates{recordstore.Join(operatorsPath, id, "lastLogin"): at})
}
