package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sokoplace/escrow-backend/api/middleware"
	"github.com/sokoplace/escrow-backend/api/responses"
	"github.com/sokoplace/escrow-backend/internal/audit"
	"github.com/sokoplace/escrow-backend/pkg/db/models"
	"github.com/sokoplace/escrow-backend/pkg/enums"
	pkgerrors "github.com/sokoplace/escrow-backend/pkg/errors"
	"github.com/sokoplace/escrow-backend/pkg/logger"
	"github.com/sokoplace/escrow-backend/pkg/pagination"
)

type auditEntryResponse struct {
	ID          uuid.UUID         `json:"id"`
	StoreID     uuid.UUID         `json:"store_id"`
	OrderID     uuid.UUID         `json:"order_id"`
	Action      enums.AuditAction `json:"action"`
	ActorUserID *uuid.UUID        `json:"actor_user_id,omitempty"`
	Metadata    json.RawMessage   `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type auditPageResponse struct {
	Entries    []auditEntryResponse `json:"entries"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

func auditEntryFromModel(m models.AuditLogEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:          m.ID,
		StoreID:     m.StoreID,
		OrderID:     m.OrderID,
		Action:      m.Action,
		ActorUserID: m.ActorUserID,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
	}
}

// AuditList pages through the caller's store audit trail, newest first.
func AuditList(recorder audit.Recorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if recorder == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit recorder unavailable"))
			return
		}

		storeID := middleware.StoreIDFromContext(r.Context())
		if storeID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "store context missing"))
			return
		}
		sid, err := uuid.Parse(storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid store id"))
			return
		}

		params := pagination.Params{Cursor: r.URL.Query().Get("cursor")}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a non-negative integer"))
				return
			}
			params.Limit = limit
		}

		page, err := recorder.ListForStore(r.Context(), sid, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries := make([]auditEntryResponse, 0, len(page.Entries))
		for _, entry := range page.Entries {
			entries = append(entries, auditEntryFromModel(entry))
		}

		responses.WriteSuccess(w, auditPageResponse{
			Entries:    entries,
			NextCursor: page.NextCursor,
		})
	}
}
