package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/collegium/core/resource"
)

func addResource(t *testing.T, app testApp, token, body string) resource.Resource {
	rec := do(app, http.MethodPost, "/v1/resources", token, []byte(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res resource.Resource
	unmarchall(t, rec, &res)
	return res
}

func Test_resourceApi_create(t *testing.T) {
	app := setup(t, nil)
	ada := getToken(t, "ada")

	tests := []httpTest{
		{name: "Auth required", method: http.MethodPost, path: "/v1/resources", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Unknown category", method: http.MethodPost, path: "/v1/resources", token: ada,
			body:     []byte(`{"title":"Sketches","description":"Figure drawing","fileUrl":"https://files.example.com/sketch.png","category":"Art"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"category": "unknown resource category"}),
		},
		{
			name: "File url required", method: http.MethodPost, path: "/v1/resources", token: ada,
			body:     []byte(`{"title":"Notes","description":"Lecture notes","category":"Physics"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"fileUrl": "this field is required"}),
		},
		{name: "Categories", path: "/v1/resources/categories", token: ada, wantData: marchallObj(t, resource.Categories)},
	}
	run(t, app, tests)

	res := addResource(t, app, ada, `{"uploadedBy":"eve","title":"Calculus Notes","description":"Limits and derivatives","fileUrl":"https://files.example.com/calc.PDF","category":"Mathematics","tags":["Math"," Exam "]}`)
	assert.Equal(t, "ada", res.UploadedBy)
	assert.Equal(t, "pdf", res.FileType)
	assert.Equal(t, []string{"math", "exam"}, res.Tags)
	assert.Zero(t, res.DownloadCount)
}

func Test_resourceApi_query(t *testing.T) {
	app := setup(t, nil)
	ada := getToken(t, "ada")

	calc := addResource(t, app, ada, `{"title":"Calculus Notes","description":"Limits and derivatives","fileUrl":"https://files.example.com/calc.pdf","category":"Mathematics","tags":["exam"]}`)
	chem := addResource(t, app, ada, `{"title":"Organic Chemistry","description":"Reaction mechanisms","fileUrl":"https://files.example.com/chem.docx","category":"Chemistry"}`)

	// download counts rank the popular resources
	for i := 0; i < 2; i++ {
		rec := do(app, http.MethodPost, "/v1/resources/"+chem.ID+"/downloads", ada)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	chem.DownloadCount = 2

	tests := []httpTest{
		{name: "category=Chemistry", path: "/v1/resources?category=Chemistry", token: ada, wantData: marchallList(t, chem)},
		{name: "tag=EXAM", path: "/v1/resources?tag=EXAM", token: ada, wantData: marchallList(t, calc)},
		{name: "search=derivatives", path: "/v1/resources?search=derivatives", token: ada, wantData: marchallList(t, calc)},
		{name: "search (unknown)", path: "/v1/resources?search=zoology", token: ada, wantData: marchallList(t)},
		{name: "Popular", path: "/v1/resources/popular?limit=1", token: ada, wantData: marchallList(t, chem)},
		{
			name: "Popular (bad limit)", path: "/v1/resources/popular?limit=lots", token: ada, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"limit": "must be a positive integer"}),
		},
		{name: "Get", path: "/v1/resources/" + calc.ID, token: ada, wantData: marchallObj(t, calc)},
		{
			name: "Download unknown", method: http.MethodPost, path: "/v1/resources/nope/downloads", token: ada,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: resource.ErrNotFound.Error()}),
		},
	}
	run(t, app, tests)
}

func Test_resourceApi_rateAndDestroy(t *testing.T) {
	app := setup(t, nil)
	ada, bob := getToken(t, "ada"), getToken(t, "bob")
	res := addResource(t, app, ada, `{"title":"Calculus Notes","description":"Limits and derivatives","fileUrl":"https://files.example.com/calc.pdf","category":"Mathematics"}`)
	path := "/v1/resources/" + res.ID

	rec := do(app, http.MethodPut, path+"/rating", bob, []byte(`{"rating":4.5}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rated resource.Resource
	unmarchall(t, rec, &rated)
	assert.Equal(t, 4.5, rated.Rating)

	rec = do(app, http.MethodPut, path+"/rating", bob, []byte(`{"rating":7}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var fldErrs map[string]string
	unmarchall(t, rec, &fldErrs)
	assert.Contains(t, fldErrs, "rating")

	tests := []httpTest{
		{name: "Uploader required", method: http.MethodDelete, path: path, token: bob, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})},
		{name: "Deleted", method: http.MethodDelete, path: path, token: ada, wantCode: http.StatusNoContent},
		{name: "Gone", path: path, token: ada, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: resource.ErrNotFound.Error()})},
	}
	run(t, app, tests)
}
