package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/collegium/apps/api/echo"
	"github.com/trezcool/collegium/core/event"
	"github.com/trezcool/collegium/core/forum"
	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/core/message"
	"github.com/trezcool/collegium/core/query"
	"github.com/trezcool/collegium/core/resource"
	"github.com/trezcool/collegium/services/logger"
	"github.com/trezcool/collegium/services/metrics"
	"github.com/trezcool/collegium/storage/localquery"
	"github.com/trezcool/collegium/tests"
)

const testSecret = "test-secret"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	Server
	store   *localstore.Store
	metrics *metricsvc.Collector
}

// setup returns a server over an in-memory store. remote is the remote query source, if any.
// change edits the server options before the server is built.
func setup(t *testing.T, remote query.Source, change ...func(*Options)) testApp {
	metrics := metricsvc.New()
	store := testutil.NewStore(t, localstore.WithIDGenerator(testutil.SeqIDs("id")), localstore.WithObserver(metrics))
	validate, translator := testutil.NewValidator()

	opts := &Options{
		TestMode:       true,
		DisableReqLogs: true,
		JWTSecret:      testSecret,
		Logger:         logsvc.NewNopLogger(),
		Validate:       validate,
		Translator:     translator,
		Store:          store,
		MessageSvc:     message.NewService(store, validate),
		EventSvc:       event.NewService(store, validate),
		ResourceSvc:    resource.NewService(store, validate),
		ForumSvc:       forum.NewService(store, validate),
		LocalSource:    localquery.New(store),
		RemoteSource:   remote,
		QueryObs:       metrics,
		Metrics:        metrics.Handler(),
	}
	for _, fn := range change {
		fn(opts)
	}
	return testApp{Server: NewServer(opts, nil), store: store, metrics: metrics}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, userID string) string {
	return signToken(t, NewClaims(userID, userID+"@college.edu", time.Hour))
}

// getAdminToken returns a service role token.
func getAdminToken(t *testing.T, userID string) string {
	claims := NewClaims(userID, userID+"@college.edu", time.Hour)
	claims.Role = RoleService
	return signToken(t, claims)
}

func signToken(t *testing.T, claims *Claims) string {
	token, err := GenerateToken(claims, testSecret)
	if err != nil {
		t.Fatalf("signToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarchall(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("unmarchall(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

// checkCodeAndData compares the response with the expected code and JSON data. A nil wantData expects an empty body.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		assert.Empty(t, rec.Body.String())
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// run runs the tests in order against app; a zero wantCode means 200 OK.
func run(t *testing.T, app Server, tests []httpTest) {
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// do serves one request and returns its recorder.
func do(app Server, method, path, token string, body ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, body...)
	app.ServeHTTP(rec, req)
	return rec
}
