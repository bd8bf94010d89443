package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/collegium/core/message"
)

func Test_messageApi(t *testing.T) {
	app := setup(t, nil)
	ada, bob := getToken(t, "ada"), getToken(t, "bob")

	tests := []httpTest{
		{name: "Auth required", method: http.MethodPost, path: "/v1/messages", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Blank content", method: http.MethodPost, path: "/v1/messages", token: ada, body: []byte(`{"receiverId":"bob","content":"  "}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"content": "this field cannot be blank"}),
		},
		{
			name: "Receiver required", method: http.MethodPost, path: "/v1/messages", token: ada, body: []byte(`{"content":"hi"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"receiverId": "this field is required"}),
		},
		{name: "Nothing unread", path: "/v1/messages/unread", token: bob, wantData: []byte(`{"count":0}`)},
		{name: "No conversations", path: "/v1/conversations", token: bob, wantData: marchallList(t)},
	}
	run(t, app, tests)

	// sender is the signed in user, whatever the body says
	rec := do(app, http.MethodPost, "/v1/messages", ada, []byte(`{"senderId":"eve","receiverId":"bob","content":"Hello Bob"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sent message.Message
	unmarchall(t, rec, &sent)
	assert.Equal(t, "ada", sent.SenderID)
	assert.Equal(t, "bob", sent.ReceiverID)
	assert.Equal(t, "Hello Bob", sent.Content)
	assert.False(t, sent.IsRead)

	rec = do(app, http.MethodPost, "/v1/messages", ada, []byte(`{"receiverId":"ada","content":"note to self"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(app, http.MethodGet, "/v1/messages/unread", bob)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = do(app, http.MethodGet, "/v1/conversations", bob)
	require.Equal(t, http.StatusOK, rec.Code)
	var convs []message.Conversation
	unmarchall(t, rec, &convs)
	require.Len(t, convs, 1)
	assert.ElementsMatch(t, []string{"ada", "bob"}, convs[0].Participants)
	assert.Equal(t, "Hello Bob", convs[0].LastMessage)

	// reading the thread marks it read
	rec = do(app, http.MethodGet, "/v1/messages/ada", bob)
	require.Equal(t, http.StatusOK, rec.Code)
	var thread []message.Message
	unmarchall(t, rec, &thread)
	require.Len(t, thread, 1)
	assert.Equal(t, sent.ID, thread[0].ID)
	assert.True(t, thread[0].IsRead)

	rec = do(app, http.MethodGet, "/v1/messages/unread", bob)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())

	// the other side sees nothing in the conversations of strangers
	rec = do(app, http.MethodGet, "/v1/conversations", getToken(t, "eve"))
	assert.JSONEq(t, `[]`, rec.Body.String())
}
