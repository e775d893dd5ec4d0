// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/VA7DBI/authAPI/auth"
	"github.com/gin-gonic/gin"
)

// StatusForError maps service errors onto an HTTP status and client message.
// Unrecognised errors become a generic 500 so driver details never leak.
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		msg := strings.TrimPrefix(err.Error(), auth.ErrValidation.Error()+": ")
		if msg == "" {
			msg = "Invalid request"
		}
		return http.StatusBadRequest, capitalize(msg)
	case errors.Is(err, auth.ErrConflict):
		return http.StatusConflict, "Email or username already exists"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized, "No token provided"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusForbidden, "Invalid token"
	case errors.Is(err, auth.ErrExpiredToken):
		return http.StatusForbidden, "Token expired"
	case errors.Is(err, auth.ErrTransient):
		return http.StatusServiceUnavailable, "Temporary failure, please retry"
	case errors.Is(err, auth.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Service unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// AbortWithError writes the mapped error response and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	status, msg := StatusForError(err)
	if errors.Is(err, auth.ErrTransient) {
		c.Header("Retry-After", "1")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
