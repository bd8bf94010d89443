package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core"
)

const (
	contextTokenKey = "userToken"

	// Audience is the audience of the access tokens issued to signed in users.
	Audience = "authenticated"

	// RoleService is the role of backend tokens, allowed to read and write any collection.
	RoleService = "service_role"
)

func newJWTConfig(secret string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secret),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims of the access tokens issued by the auth backend.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

func (c Claims) IsAdmin() bool {
	return c.Role == RoleService
}

func (c Claims) Person() core.Person {
	return core.Person{ID: c.Subject, Email: c.Email}
}

// NewClaims returns the claims of an access token for userID, valid for ttl.
func NewClaims(userID, email string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			Audience:  Audience,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: email,
		Role:  Audience,
	}
}

// GenerateToken generates a JWT token string representing the Claims, signed with secret.
func GenerateToken(claims *Claims, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// contextBearer returns the raw access token of the request.
func contextBearer(ctx echo.Context) string {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		return token.Raw
	}
	return ""
}

// contextUserID returns the id of the signed in user.
func contextUserID(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errUnauthorized
	}
	return claims.Subject, nil
}
