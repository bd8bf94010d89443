package event

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core"
	"github.com/trezcool/collegium/core/localstore"
)

var ErrNotFound = errors.New("event not found")

type Service struct {
	events       *localstore.Typed[Event]
	participants *localstore.Typed[Participant]
	validate     *validator.Validate
	newID        func() string
	now          func() time.Time
}

func NewService(store *localstore.Store, validate *validator.Validate) *Service {
	return &Service{
		events:       localstore.NewTyped[Event](store, localstore.Events),
		participants: localstore.NewTyped[Participant](store, localstore.EventParticipants),
		validate:     validate,
		newID:        store.NewID,
		now:          time.Now,
	}
}

func notFound(err error) error {
	if errors.Cause(err) == localstore.ErrNotFound {
		return ErrNotFound
	}
	return err
}

func requireUser(userID string) error {
	if core.CleanString(userID) == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "userId", Error: "this field is required"})
	}
	return nil
}

func (s *Service) Create(ne NewEvent) (Event, error) {
	if err := ne.Validate(s.validate); err != nil {
		return Event{}, err
	}
	return s.events.Add(Event{
		ID:           s.newID(),
		Title:        ne.Title,
		Description:  ne.Description,
		Date:         ne.Date.UTC(),
		Location:     ne.Location,
		Organizer:    ne.Organizer,
		Participants: []string{},
		Category:     ne.Category,
		IsOnline:     ne.IsOnline,
		Link:         ne.Link,
		ImageURL:     ne.ImageURL,
	})
}

func (s *Service) Get(id string) (Event, error) {
	evt, err := s.events.Get(id)
	return evt, notFound(err)
}

// Query returns the events matching qf, soonest first.
func (s *Service) Query(qf QueryFilter) []Event {
	qf.Clean()
	now := s.now()
	events := s.events.Filter(func(e Event) bool { return qf.matches(e, now) })
	sort.SliceStable(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	return events
}

// Join adds userID to the participants of the event. Joining twice returns the first participation.
func (s *Service) Join(eventID, userID string) (Participant, error) {
	if err := requireUser(userID); err != nil {
		return Participant{}, err
	}

	err := s.events.Mutate(func(events []Event) ([]Event, error) {
		for i, evt := range events {
			if evt.ID != eventID {
				continue
			}
			if evt.HasParticipant(userID) {
				return nil, localstore.ErrNoChange
			}
			events[i].Participants = append(events[i].Participants, userID)
			return events, nil
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return Participant{}, err
	}

	var joined Participant
	err = s.participants.Mutate(func(parts []Participant) ([]Participant, error) {
		for _, p := range parts {
			if p.EventID == eventID && p.UserID == userID {
				joined = p
				return nil, localstore.ErrNoChange
			}
		}
		joined = Participant{ID: s.newID(), EventID: eventID, UserID: userID, JoinedAt: s.now().UTC()}
		return append(parts, joined), nil
	})
	if err != nil {
		return Participant{}, err
	}
	return joined, nil
}

// Leave removes userID from the participants of the event.
func (s *Service) Leave(eventID, userID string) error {
	err := s.events.Mutate(func(events []Event) ([]Event, error) {
		for i, evt := range events {
			if evt.ID != eventID {
				continue
			}
			kept := make([]string, 0, len(evt.Participants))
			for _, p := range evt.Participants {
				if p != userID {
					kept = append(kept, p)
				}
			}
			if len(kept) == len(evt.Participants) {
				return nil, localstore.ErrNoChange
			}
			events[i].Participants = kept
			return events, nil
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return err
	}
	return s.removeParticipants(func(p Participant) bool { return p.EventID == eventID && p.UserID == userID })
}

// Participants returns who joined the event, earliest first.
func (s *Service) Participants(eventID string) ([]Participant, error) {
	if _, err := s.Get(eventID); err != nil {
		return nil, err
	}
	parts := s.participants.Filter(func(p Participant) bool { return p.EventID == eventID })
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].JoinedAt.Before(parts[j].JoinedAt) })
	return parts, nil
}

// Delete removes the event and its participations.
func (s *Service) Delete(id string) error {
	removed, err := s.events.Delete(id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	return s.removeParticipants(func(p Participant) bool { return p.EventID == id })
}

func (s *Service) removeParticipants(match func(Participant) bool) error {
	return s.participants.Mutate(func(parts []Participant) ([]Participant, error) {
		kept := make([]Participant, 0, len(parts))
		for _, p := range parts {
			if !match(p) {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(parts) {
			return nil, localstore.ErrNoChange
		}
		return kept, nil
	})
}
