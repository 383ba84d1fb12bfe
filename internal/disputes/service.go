package disputes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sokoplace/escrow-backend/pkg/db/models"
	"github.com/sokoplace/escrow-backend/pkg/enums"
	pkgerrors "github.com/sokoplace/escrow-backend/pkg/errors"
)

// Gate answers whether an order's escrow may be released and manages the
// return requests that block it.
type Gate interface {
	IsBlocked(ctx context.Context, orderID uuid.UUID) (bool, error)
	Open(ctx context.Context, input OpenInput) (*models.ReturnRequest, error)
	Resolve(ctx context.Context, input ResolveInput) (*models.ReturnRequest, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.ReturnRequest, error)
}

// OpenInput captures a buyer's new return request.
type OpenInput struct {
	OrderID uuid.UUID
	StoreID uuid.UUID
	Reason  string
}

// ResolveInput moves a request to a terminal status.
type ResolveInput struct {
	RequestID uuid.UUID
	Status    enums.ReturnRequestStatus
}

type gate struct {
	repo Repository
	now  func() time.Time
}

// NewGate wires a dispute gate with the provided repository.
func NewGate(repo Repository) (Gate, error) {
	if repo == nil {
		return nil, fmt.Errorf("dispute repository required")
	}
	return &gate{repo: repo, now: time.Now}, nil
}

// IsBlocked reports whether any open return request exists for the order.
// A blocked order keeps its escrow held no matter which release path fires.
func (g *gate) IsBlocked(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if orderID == uuid.Nil {
		return false, fmt.Errorf("order id is required")
	}
	count, err := g.repo.CountOpenForOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (g *gate) Open(ctx context.Context, input OpenInput) (*models.ReturnRequest, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}

	request := &models.ReturnRequest{
		OrderID: input.OrderID,
		StoreID: input.StoreID,
		Reason:  input.Reason,
		Status:  enums.ReturnRequestStatusRequested,
	}
	if err := g.repo.Create(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

func (g *gate) Resolve(ctx context.Context, input ResolveInput) (*models.ReturnRequest, error) {
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id is required")
	}
	if !input.Status.IsValid() || !input.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be a terminal return request status")
	}

	resolved, err := g.repo.Resolve(ctx, input.RequestID, input.Status, g.now().UTC())
	if err != nil {
		return nil, err
	}
	if !resolved {
		request, findErr := g.repo.FindByID(ctx, input.RequestID)
		if findErr != nil {
			return nil, findErr
		}
		if request == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "return request already resolved")
	}
	return g.repo.FindByID(ctx, input.RequestID)
}

func (g *gate) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.ReturnRequest, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return g.repo.ListByOrderID(ctx, orderID)
}
