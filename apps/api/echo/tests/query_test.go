package tests

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/collegium/apps/api/echo"
	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/services/supabase"
	"github.com/trezcool/collegium/tests"
)

// newRemote returns a supabase client talking to a fake PostgREST that answers `resources` queries,
// and the Authorization header of the last request it received.
func newRemote(t *testing.T) (*supabase.Client, *string) {
	var authorization string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path != "/rest/v1/resources":
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprint(w, `{"code":"42P01","message":"relation does not exist"}`)
		case strings.Contains(r.Header.Get("Accept"), "vnd.pgrst.object"):
			w.WriteHeader(http.StatusNotAcceptable)
			_, _ = fmt.Fprint(w, `{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`)
		default:
			_, _ = fmt.Fprintf(w, `[{"id":"r1","category":%q}]`, strings.TrimPrefix(r.URL.Query().Get("category"), "eq."))
		}
	}))
	t.Cleanup(srv.Close)
	return supabase.NewClient(supabase.Config{URL: srv.URL, AnonKey: "anon"}), &authorization
}

func Test_queryApi_remote(t *testing.T) {
	remote, authorization := newRemote(t)
	app := setup(t, remote)
	token := getToken(t, "ada")

	tests := []httpTest{
		{name: "Auth required", method: http.MethodPost, path: "/v1/query", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Table required", method: http.MethodPost, path: "/v1/query", token: token, body: []byte(`{"columns":"id"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"table": "this field is required"}),
		},
		{
			name: "Unknown source", method: http.MethodPost, path: "/v1/query?source=cache", token: token, body: []byte(`{"table":"resources"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"source": "must be one of remote, local"}),
		},
		{
			name: "Disabled", method: http.MethodPost, path: "/v1/query", token: token, body: []byte(`{"table":"resources","enabled":false}`),
			wantCode: http.StatusNoContent,
		},
		{
			name: "Filtered", method: http.MethodPost, path: "/v1/query", token: token,
			body:     []byte(`{"table":"resources","filters":[{"column":"category","operator":"eq","value":"Physics"}]}`),
			wantData: []byte(`[{"id":"r1","category":"Physics"}]`),
		},
		{
			name: "Not single", method: http.MethodPost, path: "/v1/query?source=remote", token: token, body: []byte(`{"table":"resources","single":true}`),
			wantCode: http.StatusNotAcceptable, wantData: []byte(`{"error":"JSON object requested, multiple (or no) rows returned","code":"PGRST116"}`),
		},
		{
			name: "Unknown table", method: http.MethodPost, path: "/v1/query", token: token, body: []byte(`{"table":"grades"}`),
			wantCode: http.StatusNotFound, wantData: []byte(`{"error":"relation does not exist","code":"42P01"}`),
		},
	}
	run(t, app, tests)

	// queries run as the caller
	bob := getToken(t, "bob")
	rec := do(app, http.MethodPost, "/v1/query", bob, []byte(`{"table":"resources"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Bearer "+bob, *authorization)

	metrics := do(app, http.MethodGet, "/metrics", "")
	assert.Contains(t, metrics.Body.String(), `collegium_query_duration_seconds_count{outcome="ok",table="resources"} 2`)
}

func Test_queryApi_local(t *testing.T) {
	app := setup(t, nil)
	token := getAdminToken(t, "ada")
	testutil.SaveCollection(t, app.store, localstore.Events,
		localstore.Record{"id": "e1", "title": "Study Session", "category": "Study"},
		localstore.Record{"id": "e2", "title": "Hackathon", "category": "Workshop"},
		localstore.Record{"id": "e3", "title": "Study Group", "category": "Study"},
	)

	tests := []httpTest{
		{
			name: "Remote not configured", method: http.MethodPost, path: "/v1/query", token: token, body: []byte(`{"table":"events"}`),
			wantCode: http.StatusServiceUnavailable, wantData: marchallObj(t, httpErr{Error: "remote backend is not configured"}),
		},
		{
			name: "Admin only", method: http.MethodPost, path: "/v1/query?source=local", token: getToken(t, "bob"), body: []byte(`{"table":"messages"}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Filtered and ordered", method: http.MethodPost, path: "/v1/query?source=local", token: token,
			body: []byte(`{"table":"events","columns":"id","filters":[{"column":"category","operator":"eq","value":"Study"}],
				"orderBy":{"column":"title","ascending":true}}`),
			wantData: []byte(`[{"id":"e3"},{"id":"e1"}]`),
		},
		{
			name: "Single", method: http.MethodPost, path: "/v1/query?source=local", token: token,
			body:     []byte(`{"table":"events","single":true,"filters":[{"column":"id","operator":"eq","value":"e2"}]}`),
			wantData: []byte(`{"id":"e2","title":"Hackathon","category":"Workshop"}`),
		},
		{
			name: "Not single", method: http.MethodPost, path: "/v1/query?source=local", token: token, body: []byte(`{"table":"events","single":true}`),
			wantCode: http.StatusNotAcceptable, wantData: marchallObj(t, httpErr{Error: "JSON object requested, multiple (or no) rows returned"}),
		},
	}
	run(t, app, tests)

	rec := do(app, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Collegium API!", rec.Body.String())
}

func Test_queryApi_localNotConfigured(t *testing.T) {
	app := setup(t, nil, func(opts *echoapi.Options) { opts.LocalSource = nil })
	tests := []httpTest{
		{
			name: "Local not configured", method: http.MethodPost, path: "/v1/query?source=local", token: getAdminToken(t, "ada"),
			body:     []byte(`{"table":"events"}`),
			wantCode: http.StatusServiceUnavailable, wantData: marchallObj(t, httpErr{Error: "local collections are not configured"}),
		},
	}
	run(t, app, tests)
}
