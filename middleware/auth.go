// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package middleware

import (
	"context"
	"strings"

	"github.com/VA7DBI/authAPI/auth"
	"github.com/gin-gonic/gin"
)

const (
	identityKey = "authapi.identity"
	tokenKey    = "authapi.token"
)

// Verifier resolves a bearer token to the identity that owns it.
type Verifier interface {
	Verify(ctx context.Context, token string) (*auth.Identity, error)
}

// AuthMiddleware gates routes on a valid bearer token.
type AuthMiddleware struct {
	verifier Verifier
}

func NewAuthMiddleware(v Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: v}
}

// BearerAuthMiddleware is shorthand for NewAuthMiddleware(v).Handler().
func BearerAuthMiddleware(v Verifier) gin.HandlerFunc {
	return NewAuthMiddleware(v).Handler()
}

// Handler returns the gin middleware handler function. On success the
// identity and token are stored on the context for later handlers.
func (m *AuthMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)

		identity, err := m.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// CurrentIdentity returns the identity stored by Handler.
func CurrentIdentity(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*auth.Identity)
	return identity, ok
}

// CurrentToken returns the token accepted by Handler.
func CurrentToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// ExtractToken reads the Authorization header. Both "Bearer <token>" and a
// bare token value are accepted.
func ExtractToken(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		return ""
	}

	scheme, rest, found := strings.Cut(authHeader, " ")
	if found && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(rest)
	}
	return authHeader
}
