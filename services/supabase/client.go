// Package supabase is a client for the hosted backend: PostgREST tables under /rest/v1 and
// the auth API under /auth/v1.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/tidwall/gjson"

	"github.com/trezcool/collegium/core"
)

const (
	restPath = "/rest/v1/"
	authPath = "/auth/v1/"

	mimeJSON   = "application/json"
	mimeObject = "application/vnd.pgrst.object+json"
)

// ErrNotConfigured is returned when the client has no URL or anon key.
var ErrNotConfigured = errors.New("supabase client is not configured")

type bearerKey struct{}

// WithBearer returns a context whose table queries authenticate with token instead of the client session.
// An empty token leaves ctx unchanged.
func WithBearer(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerKey{}, token)
}

func bearerFrom(ctx context.Context) string {
	token, _ := ctx.Value(bearerKey{}).(string)
	return token
}

type (
	Config struct {
		URL     string
		AnonKey string
		Schema  string
		Timeout time.Duration
	}

	Client struct {
		conf   Config
		http   *rest.Client
		logger core.Logger
		auth   *Auth
	}

	Option func(*Client)
)

// WithHTTPClient replaces the http.Client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = &rest.Client{HTTPClient: hc} }
}

func WithLogger(logger core.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithSessionStore persists the auth session in kv.
func WithSessionStore(kv core.KeyValueStore) Option {
	return func(c *Client) { c.auth.kv = kv }
}

func NewClient(conf Config, opts ...Option) *Client {
	conf.URL = strings.TrimRight(conf.URL, "/")
	if conf.Timeout <= 0 {
		conf.Timeout = 30 * time.Second
	}
	c := &Client{
		conf:   conf,
		http:   &rest.Client{HTTPClient: &http.Client{Timeout: conf.Timeout}},
		logger: nopLogger{},
	}
	c.auth = newAuth(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig builds a client from the app configuration.
func NewClientFromConfig(conf core.RemoteConfig, opts ...Option) *Client {
	return NewClient(Config{URL: conf.URL, AnonKey: conf.AnonKey, Schema: conf.Schema, Timeout: conf.Timeout}, opts...)
}

func (c *Client) Auth() *Auth { return c.auth }

// ProjectRef is the first label of the project host, eg: "abcd" for https://abcd.supabase.co.
func (c *Client) ProjectRef() string {
	u, err := url.Parse(c.conf.URL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.SplitN(u.Hostname(), ".", 2)[0]
}

// headers authenticate with bearer, else the session access token, else the anon key.
func (c *Client) headers(accept string, bearer string) map[string]string {
	if bearer == "" {
		bearer = c.conf.AnonKey
		if token := c.auth.accessToken(); token != "" {
			bearer = token
		}
	}
	h := map[string]string{
		"apikey":        c.conf.AnonKey,
		"Authorization": "Bearer " + bearer,
		"Accept":        accept,
		"X-Client-Info": "collegium-go",
	}
	if c.conf.Schema != "" {
		h["Accept-Profile"] = c.conf.Schema
		h["Content-Profile"] = c.conf.Schema
	}
	return h
}

// send performs the request and returns the raw body of a 2xx response, or an *APIError.
// The query string is built by the caller: PostgREST repeats keys, which rest.Request.QueryParams cannot hold.
func (c *Client) send(ctx context.Context, method rest.Method, path string, params url.Values, headers map[string]string, body interface{}) ([]byte, error) {
	if c.conf.URL == "" || c.conf.AnonKey == "" {
		return nil, ErrNotConfigured
	}

	req := rest.Request{Method: method, BaseURL: c.conf.URL + path, Headers: headers}
	if len(params) > 0 {
		req.BaseURL += "?" + params.Encode()
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encoding request body")
		}
		req.Body = data
		req.Headers["Content-Type"] = mimeJSON
	}

	resp, err := c.http.SendWithContext(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("%s %s", method, path))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, resp.Body)
	}
	return []byte(resp.Body), nil
}

// APIError is a non-2xx response of the backend.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Codes
const (
	// CodeNotSingle is returned when a single row was requested and zero or many rows matched.
	CodeNotSingle = "PGRST116"
)

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("supabase: %s (%d)", e.Message, e.Status)
}

// newAPIError reads both PostgREST ({code, message, details, hint}) and auth ({error, error_description} | {code, msg}) bodies.
func newAPIError(status int, body string) *APIError {
	e := &APIError{
		Status:  status,
		Code:    firstString(body, "code", "error_code", "error"),
		Message: firstString(body, "message", "msg", "error_description"),
		Details: firstString(body, "details"),
		Hint:    firstString(body, "hint"),
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func firstString(body string, paths ...string) string {
	if !gjson.Valid(body) {
		return ""
	}
	for _, res := range gjson.GetMany(body, paths...) {
		if res.Exists() && res.Type != gjson.Null && res.String() != "" {
			return res.String()
		}
	}
	return ""
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
