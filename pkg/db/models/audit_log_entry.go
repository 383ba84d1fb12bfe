package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sokoplace/escrow-backend/pkg/enums"
)

// AuditLogEntry is the append-only record of a state-changing escrow action.
// Rows are never updated or deleted. ActorUserID is nil for system actors
// such as the auto-release sweeper.
type AuditLogEntry struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID     uuid.UUID         `gorm:"column:store_id;type:uuid;not null;index"`
	OrderID     uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	Action      enums.AuditAction `gorm:"column:action;type:audit_action;not null"`
	ActorUserID *uuid.UUID        `gorm:"column:actor_user_id;type:uuid"`
	Metadata    json.RawMessage   `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}
