package models

import (
	"time"

	"github.com/uptrace/bun"
)

// DefaultHideReason is used when the user gives no reason for hiding a sale.
const DefaultHideReason = "Eliminada desde el panel"

// SoftDelete hides a sale from the working view without touching the mirror.
type SoftDelete struct {
	bun.BaseModel `bun:"table:sale_soft_deletes,alias:sd"`

	ID        string    `bun:"id,pk" json:"id"`
	SaleID    string    `bun:"sale_id,unique,notnull" json:"sale_id"`
	Snapshot  RawJSON   `bun:"snapshot,type:json" json:"snapshot,omitempty"`
	Reason    string    `bun:"reason,notnull" json:"reason"`
	DeletedAt time.Time `bun:"deleted_at,notnull" json:"deleted_at"`
}
