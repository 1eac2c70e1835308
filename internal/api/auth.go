package api

import (
	"errors"
	"fmt"
	"strings"

	"bakery-inventory/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const accountIDKey = "account_id"

// Authenticator verifies bearer tokens. The token subject is the account id.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator for HS256 tokens signed with secret
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Middleware rejects requests without a valid token with 401
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, err := a.authenticate(c.GetHeader("Authorization"))
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(accountIDKey, accountID)
		c.Next()
	}
}

func (a *Authenticator) authenticate(header string) (uuid.UUID, error) {
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return uuid.Nil, fmt.Errorf("%w: missing bearer token", models.ErrNotAuthenticated)
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, fmt.Errorf("%w: token expired", models.ErrNotAuthenticated)
		}
		return uuid.Nil, fmt.Errorf("%w: invalid token", models.ErrNotAuthenticated)
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil || accountID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: token subject is not an account", models.ErrNotAuthenticated)
	}
	return accountID, nil
}

// accountID returns the authenticated account set by the middleware
func accountID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(accountIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
