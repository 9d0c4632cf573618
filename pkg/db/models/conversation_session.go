package models

import (
	"encoding/json"
	"time"

	"github.com/msourial/platefull/pkg/enums"
)

// ConversationSession persists one user's position in the ordering flow.
type ConversationSession struct {
	ID             uint                    `gorm:"column:id;primaryKey"`
	UserID         string                  `gorm:"column:user_id;not null;uniqueIndex"`
	DisplayName    string                  `gorm:"column:display_name;not null;default:''"`
	State          enums.ConversationState `gorm:"column:state;not null;default:'initial'"`
	Context        json.RawMessage         `gorm:"column:context;type:jsonb;serializer:json"`
	LastBotMessage string                  `gorm:"column:last_bot_message;not null;default:''"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
