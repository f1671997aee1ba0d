package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single entry in a conversation.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index" json:"conversation_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Sender         string    `gorm:"size:255;not null" json:"sender"`
	CreatedAt      time.Time `gorm:"type:timestamptz;not null" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
