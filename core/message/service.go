package message

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core/localstore"
)

type Service struct {
	messages      *localstore.Typed[Message]
	conversations *localstore.Typed[Conversation]
	validate      *validator.Validate
	newID         func() string
	now           func() time.Time
}

func NewService(store *localstore.Store, validate *validator.Validate) *Service {
	return &Service{
		messages:      localstore.NewTyped[Message](store, localstore.Messages),
		conversations: localstore.NewTyped[Conversation](store, localstore.Conversations),
		validate:      validate,
		newID:         store.NewID,
		now:           time.Now,
	}
}

// Send stores a new message, then updates the conversation of both users (or starts one).
// The message is removed again if the conversation cannot be saved.
func (s *Service) Send(nm NewMessage) (Message, error) {
	if err := nm.Validate(s.validate); err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:         s.newID(),
		SenderID:   nm.SenderID,
		ReceiverID: nm.ReceiverID,
		Content:    nm.Content,
		SentAt:     s.now().UTC(),
	}
	if _, err := s.messages.Add(msg); err != nil {
		return Message{}, err
	}

	err := s.conversations.Mutate(func(convs []Conversation) ([]Conversation, error) {
		for i, conv := range convs {
			if conv.Has(msg.SenderID) && conv.Has(msg.ReceiverID) {
				convs[i].LastMessage = msg.Content
				convs[i].LastMessageAt = msg.SentAt
				return convs, nil
			}
		}
		return append(convs, Conversation{
			ID:            s.newID(),
			Participants:  []string{msg.SenderID, msg.ReceiverID},
			LastMessage:   msg.Content,
			LastMessageAt: msg.SentAt,
		}), nil
	})
	if err != nil {
		if _, rbErr := s.messages.Delete(msg.ID); rbErr != nil {
			return Message{}, errors.Wrap(err, "updating conversation (message kept: "+rbErr.Error()+")")
		}
		return Message{}, err
	}
	return msg, nil
}

// Thread returns the messages between userID and otherID, oldest first.
// The messages otherID sent to userID are marked as read, and their conversation's unread count is reset.
func (s *Service) Thread(userID, otherID string) ([]Message, error) {
	var thread []Message
	err := s.messages.Mutate(func(msgs []Message) ([]Message, error) {
		thread = make([]Message, 0)
		changed := false
		for i, msg := range msgs {
			if !msg.Between(userID, otherID) {
				continue
			}
			if msg.SenderID == otherID && msg.ReceiverID == userID && !msg.IsRead {
				msgs[i].IsRead = true
				changed = true
			}
			thread = append(thread, msgs[i])
		}
		if !changed {
			return nil, localstore.ErrNoChange
		}
		return msgs, nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(thread, func(i, j int) bool { return thread[i].SentAt.Before(thread[j].SentAt) })

	err = s.conversations.Mutate(func(convs []Conversation) ([]Conversation, error) {
		changed := false
		for i, conv := range convs {
			if conv.Has(userID) && conv.Has(otherID) && conv.UnreadCount != 0 {
				convs[i].UnreadCount = 0
				changed = true
			}
		}
		if !changed {
			return nil, localstore.ErrNoChange
		}
		return convs, nil
	})
	if err != nil {
		return nil, err
	}
	return thread, nil
}

// Conversations returns the conversations userID takes part in, latest first.
func (s *Service) Conversations(userID string) []Conversation {
	convs := s.conversations.Filter(func(c Conversation) bool { return c.Has(userID) })
	sort.SliceStable(convs, func(i, j int) bool { return convs[i].LastMessageAt.After(convs[j].LastMessageAt) })
	return convs
}

// Unread counts the unread messages sent to userID.
func (s *Service) Unread(userID string) int {
	return len(s.messages.Filter(func(m Message) bool { return m.ReceiverID == userID && !m.IsRead }))
}
