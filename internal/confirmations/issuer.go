package confirmations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sokoplace/escrow-backend/internal/audit"
	"github.com/sokoplace/escrow-backend/pkg/db/models"
	"github.com/sokoplace/escrow-backend/pkg/enums"
	pkgerrors "github.com/sokoplace/escrow-backend/pkg/errors"
	"github.com/sokoplace/escrow-backend/pkg/logger"
	"github.com/sokoplace/escrow-backend/pkg/security"
)

// Issuer mints delivery confirmation credentials. Every call produces a fresh
// token and OTP; earlier live credentials for the order stay valid unless the
// caller asks to regenerate, which invalidates them first.
type Issuer interface {
	Issue(ctx context.Context, input IssueInput) (*IssuedCredential, error)
}

// IssueInput identifies the order a vendor wants a credential for. Regenerate
// expires the order's live credentials before minting the new one.
type IssueInput struct {
	OrderID     uuid.UUID
	StoreID     uuid.UUID
	ActorUserID uuid.UUID
	Method      enums.ConfirmationMethod
	Regenerate  bool
}

// IssuedCredential carries the plaintext secrets back to the vendor. This is
// the only moment the raw token and OTP exist outside the caller's hands;
// storage keeps digests only.
type IssuedCredential struct {
	ConfirmationID uuid.UUID
	Token          string
	OTP            string
	Method         enums.ConfirmationMethod
	ExpiresAt      time.Time
}

// IssuerParams wires the issuer's collaborators.
type IssuerParams struct {
	Repo   Repository
	Audit  audit.Recorder
	Logger *logger.Logger
	TTL    time.Duration
}

type issuer struct {
	repo  Repository
	audit audit.Recorder
	logg  *logger.Logger
	ttl   time.Duration
	now   func() time.Time
}

// NewIssuer wires a confirmation issuer with the provided collaborators.
func NewIssuer(params IssuerParams) (Issuer, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("confirmation repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.TTL <= 0 {
		return nil, fmt.Errorf("confirmation ttl must be positive")
	}
	return &issuer{
		repo:  params.Repo,
		audit: params.Audit,
		logg:  params.Logger,
		ttl:   params.TTL,
		now:   time.Now,
	}, nil
}

func (i *issuer) Issue(ctx context.Context, input IssueInput) (*IssuedCredential, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	method := input.Method
	if method == "" {
		method = enums.ConfirmationMethodQR
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported confirmation method")
	}

	token, err := security.GenerateDeliveryToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating delivery token")
	}
	otp, err := security.GenerateOTP()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating otp")
	}

	now := i.now().UTC()
	var expired int64
	if input.Regenerate {
		expired, err = i.repo.ExpireUnused(ctx, input.OrderID, now)
		if err != nil {
			return nil, err
		}
	}

	confirmation := &models.DeliveryConfirmation{
		OrderID:   input.OrderID,
		StoreID:   input.StoreID,
		TokenHash: security.HashSecret(token),
		OTPHash:   security.HashSecret(otp),
		Method:    method,
		ExpiresAt: now.Add(i.ttl),
	}
	if err := i.repo.Create(ctx, confirmation); err != nil {
		return nil, err
	}

	actorID := input.ActorUserID
	if _, err := i.audit.Record(ctx, audit.RecordInput{
		StoreID:     input.StoreID,
		OrderID:     input.OrderID,
		Action:      enums.AuditActionConfirmationIssued,
		ActorUserID: &actorID,
		Metadata: map[string]any{
			"method":             string(method),
			"regenerate":         input.Regenerate,
			"superseded_earlier": expired,
		},
	}); err != nil {
		return nil, err
	}

	logCtx := i.logg.WithOrderID(ctx, input.OrderID.String())
	i.logg.Info(logCtx, "delivery confirmation issued")

	return &IssuedCredential{
		ConfirmationID: confirmation.ID,
		Token:          token,
		OTP:            otp,
		Method:         method,
		ExpiresAt:      confirmation.ExpiresAt,
	}, nil
}
