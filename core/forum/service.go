package forum

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core/localstore"
)

var (
	ErrNotFound        = errors.New("topic not found")
	ErrCommentNotFound = errors.New("comment not found")
)

type Service struct {
	topics   *localstore.Typed[Topic]
	comments *localstore.Typed[Comment]
	validate *validator.Validate
	newID    func() string
	now      func() time.Time
}

func NewService(store *localstore.Store, validate *validator.Validate) *Service {
	return &Service{
		topics:   localstore.NewTyped[Topic](store, localstore.ForumTopics),
		comments: localstore.NewTyped[Comment](store, localstore.ForumComments),
		validate: validate,
		newID:    store.NewID,
		now:      time.Now,
	}
}

func (s *Service) CreateTopic(nt NewTopic) (Topic, error) {
	if err := nt.Validate(s.validate); err != nil {
		return Topic{}, err
	}
	tags := nt.Tags
	if tags == nil {
		tags = []string{}
	}
	return s.topics.Add(Topic{
		ID:          s.newID(),
		Title:       nt.Title,
		Description: nt.Description,
		Category:    nt.Category,
		CreatedBy:   nt.CreatedBy,
		CreatedAt:   s.now().UTC(),
		Tags:        tags,
	})
}

func (s *Service) Get(id string) (Topic, error) {
	topic, err := s.topics.Get(id)
	if errors.Cause(err) == localstore.ErrNotFound {
		return Topic{}, ErrNotFound
	}
	return topic, err
}

// Query returns the topics matching qf, newest first.
func (s *Service) Query(qf QueryFilter) []Topic {
	qf.Clean()
	found := s.topics.Filter(func(t Topic) bool {
		if qf.Category != "" && t.Category != qf.Category {
			return false
		}
		if qf.Tag != "" && !t.HasTag(qf.Tag) {
			return false
		}
		return qf.Search == "" || t.matches(qf.Search)
	})
	sort.SliceStable(found, func(i, j int) bool { return found[i].CreatedAt.After(found[j].CreatedAt) })
	return found
}

// View returns the topic after counting one more view of it.
func (s *Service) View(id string) (Topic, error) {
	return s.updateTopic(id, func(t *Topic) { t.ViewsCount++ })
}

// Comments returns the comments of the topic, oldest first.
func (s *Service) Comments(topicID string) ([]Comment, error) {
	if _, err := s.Get(topicID); err != nil {
		return nil, err
	}
	found := s.comments.Filter(func(c Comment) bool { return c.TopicID == topicID })
	sort.SliceStable(found, func(i, j int) bool { return found[i].CreatedAt.Before(found[j].CreatedAt) })
	return found, nil
}

// AddComment comments on a topic and counts the comment on it.
// The comment is removed again if the topic is gone or cannot be saved.
func (s *Service) AddComment(nc NewComment) (Comment, error) {
	if err := nc.Validate(s.validate); err != nil {
		return Comment{}, err
	}

	cmt, err := s.comments.Add(Comment{
		ID:        s.newID(),
		TopicID:   nc.TopicID,
		Content:   nc.Content,
		CreatedBy: nc.CreatedBy,
		CreatedAt: s.now().UTC(),
		LikedBy:   []string{},
	})
	if err != nil {
		return Comment{}, err
	}

	if _, err = s.updateTopic(cmt.TopicID, func(t *Topic) { t.CommentsCount++ }); err != nil {
		if _, rbErr := s.comments.Delete(cmt.ID); rbErr != nil {
			return Comment{}, errors.Wrap(err, "counting comment (comment kept: "+rbErr.Error()+")")
		}
		return Comment{}, err
	}
	return cmt, nil
}

// LikeComment records that userID likes the comment. Liking twice counts once.
func (s *Service) LikeComment(topicID, commentID, userID string) (Comment, error) {
	var liked Comment
	err := s.comments.Mutate(func(cmts []Comment) ([]Comment, error) {
		for i := range cmts {
			if cmts[i].ID != commentID || cmts[i].TopicID != topicID {
				continue
			}
			if !cmts[i].IsLikedBy(userID) {
				cmts[i].LikedBy = append(cmts[i].LikedBy, userID)
				cmts[i].LikeCount = len(cmts[i].LikedBy)
			}
			liked = cmts[i]
			return cmts, nil
		}
		return nil, ErrCommentNotFound
	})
	if err != nil {
		return Comment{}, err
	}
	return liked, nil
}

// DeleteTopic deletes the topic and its comments.
func (s *Service) DeleteTopic(id string) error {
	removed, err := s.topics.Delete(id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	return s.comments.Mutate(func(cmts []Comment) ([]Comment, error) {
		kept := cmts[:0]
		for _, c := range cmts {
			if c.TopicID != id {
				kept = append(kept, c)
			}
		}
		if len(kept) == len(cmts) {
			return nil, localstore.ErrNoChange
		}
		return kept, nil
	})
}

func (s *Service) updateTopic(id string, change func(t *Topic)) (Topic, error) {
	var updated Topic
	err := s.topics.Mutate(func(topics []Topic) ([]Topic, error) {
		for i := range topics {
			if topics[i].ID == id {
				change(&topics[i])
				updated = topics[i]
				return topics, nil
			}
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return Topic{}, err
	}
	return updated, nil
}
