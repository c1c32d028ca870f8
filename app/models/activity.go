package models

import "time"

// Entity type names used by activity records.
const (
	EntitySubscription = "subscription"
	EntityInvoice      = "invoice"
	EntityContract     = "contract"
	EntityUser         = "user"
)

// Activity is an append-only audit record.
type Activity struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Action      string    `gorm:"type:varchar(100);not null;index" json:"action"`
	Description string    `gorm:"type:text" json:"description"`
	Actor       string    `gorm:"type:varchar(100);not null" json:"actor"`
	EntityType  string    `gorm:"type:varchar(50);index:idx_activities_entity,priority:1" json:"entity_type,omitempty"`
	EntityID    *uint     `gorm:"index:idx_activities_entity,priority:2" json:"entity_id,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func NewActivity(action, description, actor, entityType string, entityID uint) *Activity {
	a := &Activity{
		Action:      action,
		Description: description,
		Actor:       actor,
		EntityType:  entityType,
	}
	if entityID != 0 {
		id := entityID
		a.EntityID = &id
	}
	return a
}
