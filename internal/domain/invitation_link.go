package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvitationLink struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	GiftID    uuid.UUID  `gorm:"column:gift_id;type:uuid;not null;index" json:"giftId"`
	Token     string     `gorm:"column:token;not null;uniqueIndex" json:"token"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `gorm:"column:expires_at" json:"expiresAt"`
	RevokedAt *time.Time `gorm:"column:revoked_at" json:"revokedAt"`
}

func (InvitationLink) TableName() string {
	return "GiftInvitationLinks"
}

func (l *InvitationLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Revoked reports whether the organizer revoked the link.
func (l *InvitationLink) Revoked() bool {
	return l.RevokedAt != nil
}

// Expired reports whether the link expiry is at or before now.
func (l *InvitationLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// Active is true iff the link is neither revoked nor expired.
func (l *InvitationLink) Active(now time.Time) bool {
	return !l.Revoked() && !l.Expired(now)
}
