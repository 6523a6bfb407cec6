package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mmynk/storefront/internal/middleware"
	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/service"
)

// CreateUser registers a Client account. Public.
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "userId": user.ID})
}

// Authenticate exchanges a username or email and password for a token.
func (h *Handler) Authenticate(c *gin.Context) {
	var req authenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	token, _, err := h.users.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}

// CheckAdmin succeeds only for admins; the middleware does the work.
func (h *Handler) CheckAdmin(c *gin.Context) {
	ok(c)
}

func (h *Handler) PromoteAdmin(c *gin.Context) {
	h.setRole(c, models.RoleAdmin)
}

func (h *Handler) UnpromoteAdmin(c *gin.Context) {
	h.setRole(c, models.RoleClient)
}

func (h *Handler) setRole(c *gin.Context, role models.Role) {
	if err := h.users.SetRole(c.Request.Context(), c.Param("userId"), role); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c)
}

// DeleteUser removes an account. Callers may delete themselves; admins may
// delete anyone.
func (h *Handler) DeleteUser(c *gin.Context) {
	actorID := middleware.GetUserID(c.Request.Context())
	if err := h.users.DeleteUser(c.Request.Context(), actorID, c.Param("userId")); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c)
}

// ModifyUser edits a username or email. Callers may edit themselves;
// admins may edit anyone.
func (h *Handler) ModifyUser(c *gin.Context) {
	var req modifyUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	actorID := middleware.GetUserID(c.Request.Context())
	user, err := h.users.ModifyUser(c.Request.Context(), actorID, c.Param("userId"), service.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": toUserJSON(user)})
}

// ModifyPassword changes the caller's own password.
func (h *Handler) ModifyPassword(c *gin.Context) {
	var req modifyPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	actorID := middleware.GetUserID(c.Request.Context())
	err := h.users.ChangePassword(c.Request.Context(), actorID, c.Param("userId"),
		req.OldPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c)
}
