package event

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/collegium/core"
)

// Categories lists the event categories users can pick from.
var Categories = []string{"Academic", "Career", "Social", "Study", "Workshop", "Conference", "Other"}

type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Date         time.Time `json:"date"`
	Location     string    `json:"location"`
	Organizer    string    `json:"organizer"` // user id
	Participants []string  `json:"participants"`
	Category     string    `json:"category"`
	IsOnline     bool      `json:"isOnline"`
	Link         string    `json:"link,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
}

func (e Event) HasParticipant(userID string) bool {
	for _, p := range e.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (e Event) IsUpcoming(now time.Time) bool {
	return e.Date.After(now)
}

// Participant records that a user joined an event.
type Participant struct {
	ID       string    `json:"id"`
	EventID  string    `json:"eventId"`
	UserID   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NewEvent contains information needed to create a new Event.
type NewEvent struct {
	Title       string    `json:"title" validate:"notblank,max=200"`
	Description string    `json:"description" validate:"notblank"`
	Date        time.Time `json:"date" validate:"required"`
	Location    string    `json:"location"`
	Organizer   string    `json:"organizer" validate:"required"`
	Category    string    `json:"category" validate:"required,eventcategory"`
	IsOnline    bool      `json:"isOnline"`
	Link        string    `json:"link" validate:"required_if=IsOnline true,omitempty,url"`
	ImageURL    string    `json:"imageUrl" validate:"omitempty,url"`
}

func (ne *NewEvent) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	ne.Description = core.CleanString(ne.Description)
	ne.Location = core.CleanString(ne.Location)
	ne.Organizer = core.CleanString(ne.Organizer)
	ne.Link = core.CleanString(ne.Link)
	ne.ImageURL = core.CleanString(ne.ImageURL)
	return validate.Struct(ne)
}

// When values
const (
	WhenUpcoming = "upcoming"
	WhenPast     = "past"
)

type QueryFilter struct {
	Category   string `query:"category"` // "" or "all" match every category
	Search     string `query:"search"`
	When       string `query:"when"` // upcoming | past | "" (both)
	OnlineOnly bool   `query:"online"`
}

func (qf *QueryFilter) Clean() {
	qf.Category = core.CleanString(qf.Category)
	if strings.EqualFold(qf.Category, "all") {
		qf.Category = ""
	}
	qf.Search = core.CleanString(qf.Search, true /* lower */)
	qf.When = core.CleanString(qf.When, true /* lower */)
}

func (qf QueryFilter) matches(e Event, now time.Time) bool {
	if qf.Category != "" && e.Category != qf.Category {
		return false
	}
	if qf.OnlineOnly && !e.IsOnline {
		return false
	}
	switch qf.When {
	case WhenUpcoming:
		if !e.IsUpcoming(now) {
			return false
		}
	case WhenPast:
		if e.IsUpcoming(now) {
			return false
		}
	}
	if qf.Search == "" {
		return true
	}
	for _, field := range []string{e.Title, e.Description, e.Location} {
		if strings.Contains(strings.ToLower(field), qf.Search) {
			return true
		}
	}
	return false
}
