package services

import (
	"context"

	"github.com/ocintel/dispatch/pkg/models"
)

// ProfileService reads customer profiles for the API. All writes happen
// through SessionService as side effects of session lifecycle.
type ProfileService struct {
	store Store
}

// NewProfileService creates a ProfileService.
func NewProfileService(store Store) *ProfileService {
	return &ProfileService{store: store}
}

// Get returns the durable profile for a customer.
func (s *ProfileService) Get(ctx context.Context, customerID string) (*models.CustomerProfile, error) {
	if customerID == "" {
		return nil, NewValidationError("customer_id", "required")
	}
	profile, err := s.store.GetProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNotFound
	}
	return profile, nil
}
