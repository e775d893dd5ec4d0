// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"net/http"

	"github.com/VA7DBI/authAPI/auth"
	"github.com/VA7DBI/authAPI/middleware"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
)

// AuthAPI exposes auth.Service over HTTP.
type AuthAPI struct {
	service *auth.Service
	logger  hclog.Logger
}

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	Email    string `json:"email" example:"alice@example.com"`
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"secret123"`
}

// RegisterResponse is returned after a successful registration.
type RegisterResponse struct {
	Message string `json:"message" example:"User registered successfully"`
	UserID  int64  `json:"userId" example:"1"`
}

// LoginRequest is the body of POST /api/login. Username accepts either a
// username or an email address.
type LoginRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"secret123"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Message string        `json:"message" example:"Login successful"`
	Token   string        `json:"token"`
	User    auth.Identity `json:"user"`
}

// MessageResponse is a bare acknowledgement.
type MessageResponse struct {
	Message string `json:"message" example:"Logout successful"`
}

// MeResponse describes the caller.
type MeResponse struct {
	User auth.Identity `json:"user"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func NewAuthAPI(service *auth.Service, logger hclog.Logger) *AuthAPI {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &AuthAPI{service: service, logger: logger.Named("http")}
}

// @Summary     Register a new account
// @Description Create a user from an email, username and password. The new account is not logged in.
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       request body RegisterRequest true "Account details"
// @Success     201 {object} RegisterResponse
// @Failure     400 {object} ErrorResponse
// @Failure     409 {object} ErrorResponse
// @Failure     500 {object} ErrorResponse
// @Failure     503 {object} ErrorResponse
// @Router      /api/register [post]
func (a *AuthAPI) RegisterHandler(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	id, err := a.service.Register(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		a.fail(c, "register", err)
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		Message: "User registered successfully",
		UserID:  id,
	})
}

// @Summary     Log in
// @Description Check a username (or email) and password and issue a bearer token valid for 30 days.
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       request body LoginRequest true "Credentials"
// @Success     200 {object} LoginResponse
// @Failure     400 {object} ErrorResponse
// @Failure     401 {object} ErrorResponse
// @Failure     500 {object} ErrorResponse
// @Failure     503 {object} ErrorResponse
// @Router      /api/login [post]
func (a *AuthAPI) LoginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	result, err := a.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		a.fail(c, "login", err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Message: "Login successful",
		Token:   result.Token,
		User:    result.User,
	})
}

// @Summary     Log out
// @Description Revoke the presented token.
// @Tags        auth
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} MessageResponse
// @Failure     401 {object} ErrorResponse
// @Failure     403 {object} ErrorResponse
// @Failure     503 {object} ErrorResponse
// @Router      /api/logout [post]
func (a *AuthAPI) LogoutHandler(c *gin.Context) {
	if err := a.service.Logout(c.Request.Context(), middleware.ExtractToken(c)); err != nil {
		a.fail(c, "logout", err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Logout successful"})
}

// @Summary     Current user
// @Description Return the identity that owns the presented token.
// @Tags        auth
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} MeResponse
// @Failure     401 {object} ErrorResponse
// @Failure     403 {object} ErrorResponse
// @Router      /api/me [get]
func (a *AuthAPI) MeHandler(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, MeResponse{User: *identity})
}

// fail writes the mapped error response. Server-side failures are logged;
// client errors are not.
func (a *AuthAPI) fail(c *gin.Context, op string, err error) {
	if status, _ := middleware.StatusForError(err); status >= http.StatusInternalServerError {
		a.logger.Error(op+" failed", "error", err, "request_id", middleware.GetRequestID(c))
	}
	middleware.AbortWithError(c, err)
}
