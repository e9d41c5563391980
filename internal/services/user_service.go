package services

import (
	"context"
	"fmt"
	"time"

	"sms-relay-server/internal/db"
	"sms-relay-server/internal/models"
)

// UpsertUserParams carries the mutable identity fields. The admin flag only
// applies when the row is first created; upsert never promotes or demotes an
// existing user.
type UpsertUserParams struct {
	ExternalID  string  `json:"external_id"`
	Username    *string `json:"username,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	IsAdmin     bool    `json:"is_admin"`
}

// UserService provides the user directory: upsert-based registration keyed
// by external id, separate from the message flow.
type UserService struct {
	users db.UserRepository
	now   func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(users db.UserRepository) *UserService {
	return &UserService{
		users: users,
		now:   time.Now,
	}
}

// Upsert creates the user on first contact or refreshes the contact fields
// on later contact, and returns the stored row.
func (s *UserService) Upsert(ctx context.Context, params UpsertUserParams) (*models.User, error) {
	if params.ExternalID == "" {
		return nil, fmt.Errorf("external id is required")
	}

	user := &models.User{
		ExternalID:  params.ExternalID,
		Username:    params.Username,
		PhoneNumber: params.PhoneNumber,
		FirstName:   params.FirstName,
		LastName:    params.LastName,
		IsAdmin:     params.IsAdmin,
		CreatedAt:   s.now().Format(models.TimeLayout),
	}

	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, err
	}

	stored, err := s.users.GetByExternalID(ctx, params.ExternalID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("user %q missing after upsert", params.ExternalID)
	}
	return stored, nil
}

// GetByExternalID retrieves a user by external id, nil if absent.
func (s *UserService) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.users.GetByExternalID(ctx, externalID)
}
