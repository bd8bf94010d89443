package forum

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/collegium/core"
	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/storage/kv/inmem"
)

var start = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *inmemkv.DB) {
	kv := inmemkv.Open()
	t.Cleanup(func() { _ = kv.Close() })
	validate, translator := core.NewValidator()
	InitValidators(validate, translator)
	svc := NewService(localstore.New(kv), validate)

	var ids int
	var mu sync.Mutex
	svc.newID = func() string { mu.Lock(); defer mu.Unlock(); ids++; return "f" + strconv.Itoa(ids) }
	svc.now = func() time.Time { return start.Add(time.Duration(ids) * time.Hour) }
	return svc, kv
}

func createTopic(t *testing.T, svc *Service, title, category string, tags ...string) Topic {
	topic, err := svc.CreateTopic(NewTopic{
		Title:       title,
		Description: "Let's talk about " + title,
		Category:    category,
		CreatedBy:   "1",
		Tags:        tags,
	})
	require.NoError(t, err)
	return topic
}

func addComment(t *testing.T, svc *Service, topicID, content string) Comment {
	cmt, err := svc.AddComment(NewComment{TopicID: topicID, Content: content, CreatedBy: "2"})
	require.NoError(t, err)
	return cmt
}

func TestNewTopic_Validate(t *testing.T) {
	svc, _ := newTestService(t)
	valid := NewTopic{Title: " Freshman tips ", Description: "Advice", Category: "Campus Life", CreatedBy: "1", Tags: []string{" Advice "}}

	tests := []struct {
		name      string
		change    func(nt *NewTopic)
		wantField string
		wantTag   string
	}{
		{name: "blank title", change: func(nt *NewTopic) { nt.Title = "  " }, wantField: "title", wantTag: "notblank"},
		{name: "no description", change: func(nt *NewTopic) { nt.Description = "" }, wantField: "description", wantTag: "notblank"},
		{name: "unknown category", change: func(nt *NewTopic) { nt.Category = "Cooking" }, wantField: "category", wantTag: "forumcategory"},
		{name: "blank tag", change: func(nt *NewTopic) { nt.Tags = []string{"a", ""} }, wantField: "tags[1]", wantTag: "notblank"},
		{name: "no author", change: func(nt *NewTopic) { nt.CreatedBy = "" }, wantField: "createdBy", wantTag: "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nt := valid
			nt.Tags = append([]string(nil), valid.Tags...)
			tt.change(&nt)
			_, err := svc.CreateTopic(nt)
			verrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.wantField, verrs[0].Field())
			assert.Equal(t, tt.wantTag, verrs[0].Tag())
		})
	}

	topic, err := svc.CreateTopic(valid)
	require.NoError(t, err)
	assert.Equal(t, "Freshman tips", topic.Title)
	assert.Equal(t, []string{"advice"}, topic.Tags)
	assert.Zero(t, topic.ViewsCount)
	got, err := svc.Get(topic.ID)
	require.NoError(t, err)
	assert.Equal(t, topic, got)
}

func TestService_Query(t *testing.T) {
	svc, _ := newTestService(t)
	algo := createTopic(t, svc, "Algorithms study group", "Study Groups", "cs")
	intern := createTopic(t, svc, "Summer internships", "Career", "jobs", "cs")
	party := createTopic(t, svc, "Spring party", "Campus Life")

	tests := []struct {
		name   string
		filter QueryFilter
		want   []Topic
	}{
		{name: "all, newest first", want: []Topic{party, intern, algo}},
		{name: "category all", filter: QueryFilter{Category: "All"}, want: []Topic{party, intern, algo}},
		{name: "category", filter: QueryFilter{Category: "Career"}, want: []Topic{intern}},
		{name: "tag", filter: QueryFilter{Tag: " CS "}, want: []Topic{intern, algo}},
		{name: "search title", filter: QueryFilter{Search: "PARTY"}, want: []Topic{party}},
		{name: "search description", filter: QueryFilter{Search: "talk about summer"}, want: []Topic{intern}},
		{name: "search tag", filter: QueryFilter{Search: "job"}, want: []Topic{intern}},
		{name: "tag and category", filter: QueryFilter{Tag: "cs", Category: "Study Groups"}, want: []Topic{algo}},
		{name: "no match", filter: QueryFilter{Search: "zoology"}, want: []Topic{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.Query(tt.filter))
		})
	}
}

func TestService_View(t *testing.T) {
	svc, _ := newTestService(t)
	topic := createTopic(t, svc, "Exam tips", "Academic")

	for i := 1; i <= 3; i++ {
		viewed, err := svc.View(topic.ID)
		require.NoError(t, err)
		assert.Equal(t, i, viewed.ViewsCount)
	}
	_, err := svc.View("nope")
	assert.Equal(t, ErrNotFound, err)
}

func TestService_Comments(t *testing.T) {
	svc, _ := newTestService(t)
	topic := createTopic(t, svc, "Exam tips", "Academic")
	other := createTopic(t, svc, "Laptops", "Technology")

	first := addComment(t, svc, topic.ID, " Sleep well ")
	addComment(t, svc, other.ID, "Get a ThinkPad")
	second := addComment(t, svc, topic.ID, "Start early")
	assert.Equal(t, "Sleep well", first.Content)
	assert.Equal(t, []string{}, first.LikedBy)

	cmts, err := svc.Comments(topic.ID)
	require.NoError(t, err)
	assert.Equal(t, []Comment{first, second}, cmts)

	got, err := svc.Get(topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CommentsCount)

	_, err = svc.Comments("nope")
	assert.Equal(t, ErrNotFound, err)
	_, err = svc.AddComment(NewComment{TopicID: topic.ID, Content: " ", CreatedBy: "2"})
	_, ok := err.(validator.ValidationErrors)
	assert.True(t, ok, "got %v", err)
}

func TestService_AddCommentRollsBackOnTopicError(t *testing.T) {
	svc, kv := newTestService(t)
	topic := createTopic(t, svc, "Exam tips", "Academic")

	_, err := svc.AddComment(NewComment{TopicID: "nope", Content: "hi", CreatedBy: "2"})
	assert.Equal(t, ErrNotFound, err)
	assert.Empty(t, svc.comments.All())

	require.NoError(t, kv.Set("collegium_forumTopics", "{corrupt"))
	_, err = svc.AddComment(NewComment{TopicID: topic.ID, Content: "hi", CreatedBy: "2"})
	assert.Equal(t, localstore.ErrCorrupt, errors.Cause(err))
	assert.Empty(t, svc.comments.All())
}

func TestService_LikeComment(t *testing.T) {
	svc, _ := newTestService(t)
	topic := createTopic(t, svc, "Exam tips", "Academic")
	cmt := addComment(t, svc, topic.ID, "Sleep well")

	liked, err := svc.LikeComment(topic.ID, cmt.ID, "3")
	require.NoError(t, err)
	assert.Equal(t, 1, liked.LikeCount)
	liked, err = svc.LikeComment(topic.ID, cmt.ID, "3")
	require.NoError(t, err)
	assert.Equal(t, 1, liked.LikeCount)
	liked, err = svc.LikeComment(topic.ID, cmt.ID, "4")
	require.NoError(t, err)
	assert.Equal(t, 2, liked.LikeCount)
	assert.True(t, liked.IsLikedBy("4"))

	_, err = svc.LikeComment(topic.ID, "nope", "3")
	assert.Equal(t, ErrCommentNotFound, errors.Cause(err))
	_, err = svc.LikeComment("other", cmt.ID, "3")
	assert.Equal(t, ErrCommentNotFound, errors.Cause(err))
}

func TestService_DeleteTopic(t *testing.T) {
	svc, _ := newTestService(t)
	topic := createTopic(t, svc, "Exam tips", "Academic")
	other := createTopic(t, svc, "Laptops", "Technology")
	addComment(t, svc, topic.ID, "Sleep well")
	kept := addComment(t, svc, other.ID, "Get a ThinkPad")

	require.NoError(t, svc.DeleteTopic(topic.ID))
	_, err := svc.Get(topic.ID)
	assert.Equal(t, ErrNotFound, err)
	assert.Equal(t, []Comment{kept}, svc.comments.All())
	assert.Equal(t, ErrNotFound, svc.DeleteTopic(topic.ID))
}
