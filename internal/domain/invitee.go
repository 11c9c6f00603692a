package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	InviteeInvited         = "invited"
	InviteeAccepted        = "accepted"
	InviteeDeclined        = "declined"
	InviteeCheckoutCreated = "checkout_created"
	InviteePaid            = "paid"
	InviteeCanceled        = "canceled"
	InviteeExpired         = "expired"
)

// ExcludedFromSplit lists the statuses that never receive an amount.
var ExcludedFromSplit = []string{InviteeDeclined, InviteeCanceled}

// Invitee is a participant of a gift. Email is stored lowercased; the
// (gift_id, email) pair is unique.
type Invitee struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	GiftID      uuid.UUID  `gorm:"column:gift_id;type:uuid;not null;uniqueIndex:ux_gift_invitees_gift_email,priority:1;index" json:"giftId"`
	Name        string     `gorm:"column:name;not null;default:''" json:"name"`
	Email       string     `gorm:"column:email;not null;uniqueIndex:ux_gift_invitees_gift_email,priority:2" json:"email"`
	Phone       string     `gorm:"column:phone;not null;default:''" json:"phone"`
	Status      string     `gorm:"column:status;type:varchar(20);not null;default:'invited'" json:"status"`
	AmountCents *int64     `gorm:"column:amount_cents" json:"amountCents"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PaidAt      *time.Time `gorm:"column:paid_at" json:"paidAt"`
}

func (Invitee) TableName() string {
	return "GiftInvitees"
}

func (i *Invitee) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Eligible reports whether the invitee takes part in the split.
func (i *Invitee) Eligible() bool {
	return i.Status != InviteeDeclined && i.Status != InviteeCanceled
}
