package forum

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/collegium/core"
)

// Categories lists the forum categories users can pick from.
var Categories = []string{
	"Academic",
	"Study Groups",
	"Technology",
	"Campus Life",
	"Career",
	"General",
}

type Topic struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	CreatedBy     string    `json:"createdBy"` // user id
	CreatedAt     time.Time `json:"createdAt"`
	CommentsCount int       `json:"commentsCount"`
	ViewsCount    int       `json:"viewsCount"`
	Tags          []string  `json:"tags"`
}

func (t Topic) HasTag(tag string) bool {
	for _, tg := range t.Tags {
		if strings.EqualFold(tg, tag) {
			return true
		}
	}
	return false
}

// matches reports whether the lowered search text is found in the title, the description or a tag.
func (t Topic) matches(search string) bool {
	if strings.Contains(strings.ToLower(t.Title), search) || strings.Contains(strings.ToLower(t.Description), search) {
		return true
	}
	for _, tg := range t.Tags {
		if strings.Contains(strings.ToLower(tg), search) {
			return true
		}
	}
	return false
}

type Comment struct {
	ID        string    `json:"id"`
	TopicID   string    `json:"topicId"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"createdBy"` // user id
	CreatedAt time.Time `json:"createdAt"`
	LikeCount int       `json:"likeCount"`
	LikedBy   []string  `json:"likedBy"`
}

func (c Comment) IsLikedBy(userID string) bool {
	for _, id := range c.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// NewTopic contains information needed to start a new Topic.
type NewTopic struct {
	Title       string   `json:"title" validate:"notblank,max=200"`
	Description string   `json:"description" validate:"notblank"`
	Category    string   `json:"category" validate:"required,forumcategory"`
	CreatedBy   string   `json:"createdBy" validate:"required"`
	Tags        []string `json:"tags" validate:"omitempty,max=20,dive,notblank"`
}

func (nt *NewTopic) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	nt.Category = core.CleanString(nt.Category)
	nt.CreatedBy = core.CleanString(nt.CreatedBy)
	for i, tag := range nt.Tags {
		nt.Tags[i] = core.CleanString(tag, true /* lower */)
	}
	return validate.Struct(nt)
}

// NewComment contains information needed to comment on a Topic.
type NewComment struct {
	TopicID   string `json:"topicId" validate:"required"`
	Content   string `json:"content" validate:"notblank,max=5000"`
	CreatedBy string `json:"createdBy" validate:"required"`
}

func (nc *NewComment) Validate(validate *validator.Validate) error {
	nc.Content = core.CleanString(nc.Content)
	nc.CreatedBy = core.CleanString(nc.CreatedBy)
	return validate.Struct(nc)
}

type QueryFilter struct {
	Category string `query:"category"` // "" or "all" match every category
	Tag      string `query:"tag"`
	Search   string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Category = core.CleanString(qf.Category)
	if strings.EqualFold(qf.Category, "all") {
		qf.Category = ""
	}
	qf.Tag = core.CleanString(qf.Tag, true /* lower */)
	qf.Search = core.CleanString(qf.Search, true /* lower */)
}
