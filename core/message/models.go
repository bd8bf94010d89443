package message

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/collegium/core"
)

type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	SentAt     time.Time `json:"sentAt"`
	IsRead     bool      `json:"isRead"`
}

// Between reports whether m was exchanged between users a and b, in either direction.
func (m Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

type Conversation struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
}

func (c Conversation) Has(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// NewMessage contains information needed to send a Message.
type NewMessage struct {
	SenderID   string `json:"senderId" validate:"required"`
	ReceiverID string `json:"receiverId" validate:"required,nefield=SenderID"`
	Content    string `json:"content" validate:"notblank,max=5000"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.SenderID = core.CleanString(nm.SenderID)
	nm.ReceiverID = core.CleanString(nm.ReceiverID)
	return validate.Struct(nm)
}
