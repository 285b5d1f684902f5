package handlers

import (
	"context"
	"net/http"

	"github.com/archivus/docflow/internal/domain/services"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WorkflowHandler exposes the signature and voting workflows
type WorkflowHandler struct {
	*BaseHandler
	signatures *services.SignatureWorkflow
	voting     *services.VotingWorkflow
}

func NewWorkflowHandler(signatures *services.SignatureWorkflow, voting *services.VotingWorkflow, log *logger.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		BaseHandler: NewBaseHandler(log),
		signatures:  signatures,
		voting:      voting,
	}
}

type CreateSignatureRequest struct {
	SignerEmail string `json:"signer_email" binding:"required,email"`
	Label       string `json:"label" binding:"required"`
}

type CreateVotingProcessRequest struct {
	VoterEmails  []string `json:"voter_emails" binding:"required,min=1"`
	DeadlineDays int      `json:"deadline_days"`
}

type CastVoteRequest struct {
	Choice models.VoteChoice `json:"choice" binding:"required"`
}

// RegisterRoutes registers signature and voting routes
func (h *WorkflowHandler) RegisterRoutes(router *gin.RouterGroup) {
	versions := router.Group("/versions")
	{
		versions.GET("/:id/signatures", h.ListSignatures)
		versions.POST("/:id/signatures", h.CreateSignature)
		versions.GET("/:id/voting-processes", h.ListVotingProcesses)
		versions.POST("/:id/voting-processes", h.CreateVotingProcess)
	}

	signatures := router.Group("/signatures")
	{
		signatures.POST("/:id/sign", h.Sign)
		signatures.POST("/:id/refuse", h.Refuse)
		signatures.GET("/:id/verify", h.VerifySignature)
	}

	processes := router.Group("/voting-processes")
	{
		processes.GET("/:id", h.GetVotingProcess)
		processes.PATCH("/:id", h.UpdateVotingProcess)
		processes.DELETE("/:id", h.DeleteVotingProcess)
		processes.POST("/:id/votes", h.CastVote)
	}
}

func (h *WorkflowHandler) ListSignatures(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	versionID, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	sigs, err := h.signatures.ListSignatures(c.Request.Context(), actor, versionID)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, sigs)
}

// CreateSignature requests a signature on a version
// @Router /api/v1/versions/{id}/signatures [post]
func (h *WorkflowHandler) CreateSignature(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	versionID, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	var req CreateSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	sig, err := h.signatures.CreateSignature(c.Request.Context(), actor, services.CreateSignatureParams{
		VersionID:   versionID,
		SignerEmail: req.SignerEmail,
		Label:       req.Label,
	})
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondCreated(c, sig)
}

func (h *WorkflowHandler) Sign(c *gin.Context) {
	h.decide(c, h.signatures.Sign)
}

func (h *WorkflowHandler) Refuse(c *gin.Context) {
	h.decide(c, h.signatures.Refuse)
}

func (h *WorkflowHandler) decide(c *gin.Context, decision func(context.Context, services.Actor, uuid.UUID) (*models.Signature, error)) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	sig, err := decision(c.Request.Context(), actor, id)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, sig)
}

func (h *WorkflowHandler) VerifySignature(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	valid, err := h.signatures.VerifySignature(c.Request.Context(), actor, id)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, gin.H{"signature_id": id, "valid": valid})
}

func (h *WorkflowHandler) ListVotingProcesses(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	versionID, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	processes, err := h.voting.ListVotingProcesses(c.Request.Context(), actor, versionID)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, processes)
}

// CreateVotingProcess opens a vote on a version
// @Router /api/v1/versions/{id}/voting-processes [post]
func (h *WorkflowHandler) CreateVotingProcess(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	versionID, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	var req CreateVotingProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	process, err := h.voting.CreateVotingProcess(c.Request.Context(), actor, services.CreateVotingProcessParams{
		VersionID:    versionID,
		VoterEmails:  req.VoterEmails,
		DeadlineDays: req.DeadlineDays,
	})
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondCreated(c, process)
}

func (h *WorkflowHandler) GetVotingProcess(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	process, err := h.voting.GetVotingProcess(c.Request.Context(), actor, id)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, process)
}

func (h *WorkflowHandler) UpdateVotingProcess(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateVotingProcessParams
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	process, err := h.voting.UpdateVotingProcess(c.Request.Context(), actor, id, req)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, process)
}

func (h *WorkflowHandler) DeleteVotingProcess(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	if err := h.voting.DeleteVotingProcess(c.Request.Context(), actor, id); err != nil {
		h.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CastVote records the actor's vote, or a vote on behalf of a principal they substitute for
// @Router /api/v1/voting-processes/{id}/votes [post]
func (h *WorkflowHandler) CastVote(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	var req CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	vote, err := h.voting.CastVote(c.Request.Context(), actor, id, req.Choice)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondCreated(c, vote)
}
