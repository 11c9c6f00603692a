package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SessionCreated = "created"
	SessionPaid    = "paid"
	SessionExpired = "expired"
)

// CheckoutSession links an invitee to one hosted payment page at the
// provider. At most one row per invitee may be in status "created"; a
// partial unique index enforces it (see database.AutoMigrate).
type CheckoutSession struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	InviteeID         uuid.UUID  `gorm:"column:invitee_id;type:uuid;not null;index" json:"inviteeId"`
	ProviderSessionID string     `gorm:"column:provider_session_id;not null;uniqueIndex" json:"providerSessionId"`
	Status            string     `gorm:"column:status;type:varchar(20);not null;default:'created'" json:"status"`
	AmountTotalCents  *int64     `gorm:"column:amount_total_cents" json:"amountTotalCents"`
	PaymentIntentID   *string    `gorm:"column:payment_intent_id" json:"paymentIntentId"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	PaidAt            *time.Time `gorm:"column:paid_at" json:"paidAt"`
}

func (CheckoutSession) TableName() string {
	return "CheckoutSessions"
}

func (s *CheckoutSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
