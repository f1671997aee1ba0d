package chat

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Conversation is a chat thread owned by a user. Participants are fixed at creation.
type Conversation struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string         `gorm:"size:255;not null;index" json:"user_id"`
	Participants pq.StringArray `gorm:"type:text[]" json:"participants"`
	Title        *string        `gorm:"size:255" json:"title"`
	CreatedAt    time.Time      `gorm:"type:timestamptz;not null;index" json:"created_at"`
	Messages     []Message      `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Fingerprint identifies the message history a summary was produced from.
func (c *Conversation) Fingerprint() string {
	if len(c.Messages) == 0 {
		return "0"
	}
	return c.Messages[len(c.Messages)-1].ID.String() + ":" + strconv.Itoa(len(c.Messages))
}
