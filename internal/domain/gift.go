package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Gift is the shared payment goal. SplitLockedAt is written once, by a
// conditional update, and never cleared.
type Gift struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name            string     `gorm:"column:name;not null" json:"name"`
	Currency        string     `gorm:"column:currency;type:varchar(3);not null;default:'usd'" json:"currency"`
	TotalPriceCents int64      `gorm:"column:total_price_cents;not null" json:"totalPriceCents"`
	SplitLockedAt   *time.Time `gorm:"column:split_locked_at" json:"splitLockedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (Gift) TableName() string {
	return "Gifts"
}

func (g *Gift) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// Locked reports whether the participant list and amounts are frozen.
func (g *Gift) Locked() bool {
	return g.SplitLockedAt != nil
}
