package bunprofile

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProfileRecord is the application-level document describing a user, distinct
// from the identity provider's own account record.
type ProfileRecord struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     string         `bun:"account_id,notnull,unique" json:"account_id,omitempty"`
	DisplayName   string         `bun:"display_name" json:"display_name,omitempty"`
	Status        string         `bun:"status,notnull,default:'active'" json:"status,omitempty"`
	IsBanned      bool           `bun:"is_banned" json:"is_banned,omitempty"`
	IsSuspended   bool           `bun:"is_suspended" json:"is_suspended,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}
