package memberships

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sokoplace/escrow-backend/pkg/enums"
)

// Service answers store membership questions for the API layer.
type Service interface {
	IsMember(ctx context.Context, storeID, userID uuid.UUID) (bool, error)
	RoleOf(ctx context.Context, storeID, userID uuid.UUID) (enums.MemberRole, bool, error)
}

type service struct {
	repo Repository
}

// NewService wires a membership service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("membership repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) IsMember(ctx context.Context, storeID, userID uuid.UUID) (bool, error) {
	_, ok, err := s.RoleOf(ctx, storeID, userID)
	return ok, err
}

func (s *service) RoleOf(ctx context.Context, storeID, userID uuid.UUID) (enums.MemberRole, bool, error) {
	if storeID == uuid.Nil {
		return "", false, fmt.Errorf("store id is required")
	}
	if userID == uuid.Nil {
		return "", false, fmt.Errorf("user id is required")
	}
	membership, err := s.repo.Find(ctx, storeID, userID)
	if err != nil {
		return "", false, err
	}
	if membership == nil {
		return "", false, nil
	}
	return membership.Role, true, nil
}
