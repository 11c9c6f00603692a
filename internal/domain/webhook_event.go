package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookEvent is the idempotency ledger for provider events. EventID is
// the dedup key.
type WebhookEvent struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	EventID    string         `gorm:"column:event_id;not null;uniqueIndex" json:"eventId"`
	Type       string         `gorm:"column:type;not null" json:"type"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	ReceivedAt time.Time      `gorm:"column:received_at;not null" json:"receivedAt"`
	HandledAt  *time.Time     `gorm:"column:handled_at" json:"handledAt"`
}

func (WebhookEvent) TableName() string {
	return "WebhookEvents"
}

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
