package types

import (
	"context"
	"time"
)

// BaseModel carries the audit columns shared by every persisted entity.
// Changes here must be mirrored in the migrations.
type BaseModel struct {
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
}

// GetDefaultBaseModel stamps audit columns from the request context at the given instant
func GetDefaultBaseModel(ctx context.Context, now time.Time) BaseModel {
	now = now.UTC()
	return BaseModel{
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: GetUserID(ctx),
		UpdatedBy: GetUserID(ctx),
	}
}
