// Auth HTTP handlers.
//
//   - POST /auth/register
//   - POST /auth/login
//   - GET  /auth/me
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-llm-chat/internal/services"
)

// RegisterRequest is the JSON payload for creating an account.
type RegisterRequest struct {
	Username string `json:"username" binding:"required" example:"alice"`
	Email    string `json:"email"    binding:"required" example:"alice@example.com"`
	Password string `json:"password" binding:"required" example:"correct-horse-battery"`
}

// LoginRequest is the JSON payload for exchanging credentials for a token.
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"alice"`
	Password string `json:"password" binding:"required" example:"correct-horse-battery"`
}

// Register godoc
// @ID          register
// @Summary     Create an account
// @Description Usernames and emails are unique. Passwords are at most 72 bytes.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Account"
// @Success     201   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409   {object}  handlers.ErrorResponse  "Username or email taken"
// @Failure     502   {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username, email and password are required")
		return
	}
	u, err := h.auth.Register(c.Request.Context(), services.Registration{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// Login godoc
// @ID          login
// @Summary     Obtain a bearer token
// @Description Unknown users and wrong passwords get the same 401.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  services.AccessToken
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid username or password"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and password are required")
		return
	}
	tok, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, tok)
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	ok(c, http.StatusOK, u)
}
