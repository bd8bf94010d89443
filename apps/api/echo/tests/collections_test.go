package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/tests"
)

func Test_collectionApi_retrieve(t *testing.T) {
	app := setup(t, nil)
	token := getAdminToken(t, "u1")

	e1 := localstore.Record{"id": "e1", "title": "Study Session", "seats": 10}
	e2 := localstore.Record{"id": "e2", "title": "Hackathon", "seats": 50}
	e3 := localstore.Record{"id": "e3", "title": "Career Fair", "seats": 200}
	testutil.SaveCollection(t, app.store, localstore.Events, e1, e2, e3)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/collections", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Invalid token", path: "/v1/collections", token: "not.a.token", wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "Admin only", path: "/v1/collections", token: getToken(t, "u1"), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "List", path: "/v1/collections", token: token, wantData: marchallList(t, localstore.Events)},
		{name: "Unknown collection", path: "/v1/collections/users", token: token, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})},
		{name: "Empty collection", path: "/v1/collections/resources", token: token, wantData: marchallList(t)},
		{name: "Get all", path: "/v1/collections/events", token: token, wantData: marchallList(t, e1, e2, e3)},
		{name: "ordering=-seats", path: "/v1/collections/events?ordering=-seats", token: token, wantData: marchallList(t, e3, e2, e1)},
		{name: "ordering=title&limit=2", path: "/v1/collections/events?ordering=title&limit=2", token: token, wantData: marchallList(t, e3, e2)},
		{
			name: "Bad limit", path: "/v1/collections/events?limit=-1", token: token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"limit": "must be a positive integer"}),
		},
	}
	run(t, app, tests)
}

func Test_collectionApi_replace(t *testing.T) {
	app := setup(t, nil)
	token := getAdminToken(t, "u1")
	path := "/v1/collections/resources"

	// unconditional write
	rec := do(app, http.MethodPut, path, token, []byte(`[{"id":"r1","title":"Notes"}]`))
	require.Equal(t, http.StatusNoContent, rec.Code)
	rev := rec.Header().Get("X-Collection-Revision")
	require.NotEmpty(t, rev)

	// stale revision
	req, rec := newAuthRequest(http.MethodPut, path, token, []byte(`[]`))
	req.Header.Set("X-Collection-Revision", "1")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"collection was modified concurrently"}`, rec.Body.String())

	// current revision
	req, rec = newAuthRequest(http.MethodPut, path, token, []byte(`[{"id":"r2","title":"Slides"}]`))
	req.Header.Set("X-Collection-Revision", rev)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEqual(t, rev, rec.Header().Get("X-Collection-Revision"))

	rec = do(app, http.MethodGet, path, token)
	assert.JSONEq(t, `[{"id":"r2","title":"Slides"}]`, rec.Body.String())

	rec = do(app, http.MethodPut, path, token, []byte(`{"id":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	tests := []httpTest{
		{
			name: "Missing id", method: http.MethodPut, path: path, token: token, body: []byte(`[{"title":"x"}]`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: localstore.ErrInvalidRecord.Error()}),
		},
		{name: "Clear", method: http.MethodDelete, path: path, token: token, wantCode: http.StatusNoContent},
		{name: "Cleared", path: path, token: token, wantData: marchallList(t)},
	}
	run(t, app, tests)
}

func Test_collectionApi_replaceNeedsJSON(t *testing.T) {
	app := setup(t, nil)
	req, rec := newAuthRequest(http.MethodPut, "/v1/collections/events", getAdminToken(t, "u1"), []byte(`[]`))
	req.Header.Set("Content-Type", "text/plain")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func Test_collectionApi_records(t *testing.T) {
	app := setup(t, nil)
	token := getAdminToken(t, "u1")
	path := "/v1/collections/messages/records"

	tests := []httpTest{
		{
			name: "Add with id", method: http.MethodPost, path: path, token: token, body: []byte(`{"id":"m1","content":"hi"}`),
			wantCode: http.StatusCreated, wantData: []byte(`{"id":"m1","content":"hi"}`),
		},
		{
			name: "Add without id", method: http.MethodPost, path: path, token: token, body: []byte(`{"content":"yo"}`),
			wantCode: http.StatusCreated, wantData: []byte(`{"id":"id1","content":"yo"}`),
		},
		{name: "Get", path: path + "/m1", token: token, wantData: []byte(`{"id":"m1","content":"hi"}`)},
		{
			name: "Get unknown", path: path + "/nope", token: token, wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "record not found"}),
		},
		{
			name: "Update", method: http.MethodPatch, path: path + "/m1", token: token, body: []byte(`{"isRead":true}`),
			wantData: []byte(`{"id":"m1","content":"hi","isRead":true}`),
		},
		{
			name: "Update unknown", method: http.MethodPatch, path: path + "/nope", token: token, body: []byte(`{"isRead":true}`),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "record not found"}),
		},
		{name: "Delete", method: http.MethodDelete, path: path + "/m1", token: token, wantCode: http.StatusNoContent},
		{
			name: "Delete again", method: http.MethodDelete, path: path + "/m1", token: token, wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "Remaining", path: "/v1/collections/messages", token: token, wantData: []byte(`[{"id":"id1","content":"yo"}]`)},
	}
	run(t, app, tests)
}

func Test_collectionApi_forbidden(t *testing.T) {
	app := setup(t, nil)
	ada, bob := getToken(t, "ada"), getToken(t, "bob")

	res := addResource(t, app, ada, `{"title":"Notes","description":"Lecture notes","fileUrl":"https://files.example.com/notes.pdf","category":"Mathematics"}`)
	rec := do(app, http.MethodPost, "/v1/messages", ada, []byte(`{"receiverId":"carl","content":"private to carl"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	forbidden := marchallObj(t, httpErr{Error: "permission denied"})
	tests := []httpTest{
		{name: "Read messages", path: "/v1/collections/messages", token: bob, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "Read conversations", path: "/v1/collections/conversations", token: bob, wantCode: http.StatusForbidden, wantData: forbidden},
		{
			name: "Delete resource record", method: http.MethodDelete, path: "/v1/collections/resources/records/" + res.ID, token: bob,
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{name: "Clear resources", method: http.MethodDelete, path: "/v1/collections/resources", token: ada, wantCode: http.StatusForbidden, wantData: forbidden},
	}
	run(t, app, tests)

	rec = do(app, http.MethodGet, "/v1/resources/"+res.ID, ada)
	assert.Equal(t, http.StatusOK, rec.Code)
}
