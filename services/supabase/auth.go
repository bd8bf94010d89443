package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/tidwall/gjson"

	"github.com/trezcool/collegium/core"
)

var ErrNoSession = errors.New("no auth session")

const (
	// refreshMargin is how long before expiry a session gets refreshed.
	refreshMargin = 90 * time.Second
	tickInterval  = 30 * time.Second
)

type (
	User struct {
		ID           uuid.UUID              `json:"id"`
		Email        string                 `json:"email"`
		Role         string                 `json:"role,omitempty"`
		UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
		CreatedAt    time.Time              `json:"created_at"`
	}

	Session struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
		ExpiresAt    int64  `json:"expires_at"` // unix seconds
		RefreshToken string `json:"refresh_token"`
		User         User   `json:"user"`
	}
)

// ExpiresWithin reports whether the session expires in less than d.
func (s Session) ExpiresWithin(d time.Duration, now time.Time) bool {
	return s.ExpiresAt > 0 && now.Add(d).Unix() >= s.ExpiresAt
}

// Auth manages the auth session of a Client. The session is persisted in the client's session store
// under sb-<project ref>-auth-token, and used as the bearer of every request once signed in.
type Auth struct {
	c   *Client
	kv  core.KeyValueStore
	now func() time.Time

	mu      sync.Mutex
	session *Session
	loaded  bool
}

func newAuth(c *Client) *Auth {
	return &Auth{c: c, now: time.Now}
}

// StorageKey is the session key in the session store.
func (a *Auth) StorageKey() string {
	return fmt.Sprintf("sb-%s-auth-token", a.c.ProjectRef())
}

// SignIn signs in with email and password.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": core.CleanString(email, true), "password": password}
	return a.grant(ctx, "password", body)
}

// SignUp creates a user. The returned session is nil when the backend requires an email confirmation first.
func (a *Auth) SignUp(ctx context.Context, email, password string, metadata map[string]interface{}) (User, *Session, error) {
	body := map[string]interface{}{"email": core.CleanString(email, true), "password": password}
	if len(metadata) > 0 {
		body["data"] = metadata
	}
	data, err := a.c.send(ctx, rest.Post, authPath+"signup", nil, a.c.headers(mimeJSON, a.c.conf.AnonKey), body)
	if err != nil {
		return User{}, nil, errors.Wrap(err, "signing up")
	}

	// auto-confirmed sign ups get a session, others only the user
	if gjson.GetBytes(data, "access_token").Exists() {
		sess, err := a.decodeSession(data)
		if err != nil {
			return User{}, nil, err
		}
		if err = a.setSession(sess); err != nil {
			return User{}, nil, err
		}
		return sess.User, sess, nil
	}

	var usr User
	if err = json.Unmarshal(data, &usr); err != nil {
		return User{}, nil, errors.Wrap(err, "decoding user")
	}
	return usr, nil, nil
}

// Refresh exchanges the refresh token of the current session for a new session.
func (a *Auth) Refresh(ctx context.Context) (*Session, error) {
	sess, err := a.Session()
	if err != nil {
		return nil, err
	}
	return a.grant(ctx, "refresh_token", map[string]string{"refresh_token": sess.RefreshToken})
}

// SignOut revokes the session remotely and removes it locally. The local session is removed even if revoking fails.
func (a *Auth) SignOut(ctx context.Context) error {
	sess, err := a.Session()
	if err == ErrNoSession {
		return nil
	}
	if err != nil {
		return err
	}

	_, remoteErr := a.c.send(ctx, rest.Post, authPath+"logout", nil, a.c.headers(mimeJSON, sess.AccessToken), nil)
	if err = a.setSession(nil); err != nil {
		return err
	}
	if remoteErr != nil {
		// an already revoked session is signed out
		if apiErr, ok := errors.Cause(remoteErr).(*APIError); ok && (apiErr.Status == 401 || apiErr.Status == 404) {
			return nil
		}
		return errors.Wrap(remoteErr, "signing out")
	}
	return nil
}

// Session returns the current session, loading it from the session store on first use.
func (a *Auth) Session() (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		if err := a.load(); err != nil {
			return nil, err
		}
	}
	if a.session == nil {
		return nil, ErrNoSession
	}
	sess := *a.session
	return &sess, nil
}

// AutoRefresh refreshes the session shortly before it expires, until ctx is done.
// Refresh failures are logged and retried on the next tick.
func (a *Auth) AutoRefresh(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		a.refreshIfExpiring(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *Auth) refreshIfExpiring(ctx context.Context) {
	sess, err := a.Session()
	if err != nil {
		if err != ErrNoSession {
			a.c.logger.Error("Error loading auth session", err)
		}
		return
	}
	if !sess.ExpiresWithin(refreshMargin, a.now()) {
		return
	}
	if _, err = a.Refresh(ctx); err != nil && ctx.Err() == nil {
		a.c.logger.Error("Error refreshing auth session", err, core.Person{ID: sess.User.ID.String(), Email: sess.User.Email})
	}
}

// accessToken returns the access token of an unexpired session, if any.
func (a *Auth) accessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		if err := a.load(); err != nil {
			a.c.logger.Warn("Error loading auth session", err)
			return ""
		}
	}
	if a.session == nil || a.session.ExpiresWithin(0, a.now()) {
		return ""
	}
	return a.session.AccessToken
}

func (a *Auth) grant(ctx context.Context, grantType string, body interface{}) (*Session, error) {
	params := url.Values{"grant_type": {grantType}}
	data, err := a.c.send(ctx, rest.Post, authPath+"token", params, a.c.headers(mimeJSON, a.c.conf.AnonKey), body)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("requesting %s grant", grantType))
	}
	sess, err := a.decodeSession(data)
	if err != nil {
		return nil, err
	}
	if err = a.setSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (a *Auth) decodeSession(data []byte) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Wrap(err, "decoding session")
	}
	if sess.AccessToken == "" {
		return nil, errors.New("session has no access token")
	}
	if sess.ExpiresAt == 0 {
		sess.ExpiresAt = a.tokenExpiry(sess)
	}
	return &sess, nil
}

// tokenExpiry reads exp from the (unverified) access token, falling back to expires_in.
func (a *Auth) tokenExpiry(sess Session) int64 {
	var claims jwt.StandardClaims
	if _, _, err := new(jwt.Parser).ParseUnverified(sess.AccessToken, &claims); err == nil && claims.ExpiresAt > 0 {
		return claims.ExpiresAt
	}
	if sess.ExpiresIn > 0 {
		return a.now().Unix() + sess.ExpiresIn
	}
	return 0
}

// load must be called with a.mu held.
func (a *Auth) load() error {
	a.loaded = true
	if a.kv == nil {
		return nil
	}
	blob, err := a.kv.Get(a.StorageKey())
	if err != nil {
		if errors.Cause(err) == core.ErrKeyNotFound {
			return nil
		}
		a.loaded = false
		return errors.Wrap(err, "reading session")
	}
	var sess Session
	if err = json.Unmarshal([]byte(blob), &sess); err != nil {
		// a corrupt session is dropped, as if signed out
		a.c.logger.Warn("Dropping unreadable auth session", err)
		return nil
	}
	a.session = &sess
	return nil
}

func (a *Auth) setSession(sess *Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = sess
	a.loaded = true
	if a.kv == nil {
		return nil
	}
	if sess == nil {
		return errors.Wrap(a.kv.Delete(a.StorageKey()), "removing session")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}
	return errors.Wrap(a.kv.Set(a.StorageKey(), string(data)), "saving session")
}
