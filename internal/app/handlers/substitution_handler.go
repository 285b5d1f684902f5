package handlers

import (
	"time"

	"github.com/archivus/docflow/internal/domain/services"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/gin-gonic/gin"
)

// SubstitutionHandler lets a user name a substitute for an absence
type SubstitutionHandler struct {
	*BaseHandler
	delegation *services.DelegationResolver
}

func NewSubstitutionHandler(delegation *services.DelegationResolver, log *logger.Logger) *SubstitutionHandler {
	return &SubstitutionHandler{
		BaseHandler: NewBaseHandler(log),
		delegation:  delegation,
	}
}

type AssignSubstituteRequest struct {
	SubstituteEmail string    `json:"substitute_email" binding:"required,email"`
	Until           time.Time `json:"until" binding:"required"`
}

func (h *SubstitutionHandler) RegisterRoutes(router *gin.RouterGroup) {
	sub := router.Group("/substitution")
	{
		sub.GET("", h.Current)
		sub.PUT("", h.Assign)
		sub.DELETE("", h.Clear)
	}
}

func (h *SubstitutionHandler) Current(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	sub, err := h.delegation.Current(c.Request.Context(), actor.UserID)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, gin.H{"substitution": sub})
}

func (h *SubstitutionHandler) Assign(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	var req AssignSubstituteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	sub, err := h.delegation.Assign(c.Request.Context(), actor, req.SubstituteEmail, req.Until)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, sub)
}

func (h *SubstitutionHandler) Clear(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	if err := h.delegation.Clear(c.Request.Context(), actor); err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, SuccessResponse{Message: "Substitution cleared", Success: true})
}
