package handlers

import (
	"github.com/archivus/docflow/internal/domain/services"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/gin-gonic/gin"
)

// DocumentHandler handles HTTP requests for document operations
type DocumentHandler struct {
	*BaseHandler
	documentService *services.DocumentService
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documentService *services.DocumentService, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		BaseHandler:     NewBaseHandler(log),
		documentService: documentService,
	}
}

type RegisterDocumentTypeRequest struct {
	Name            string       `json:"name" binding:"required"`
	AttributeSchema models.JSONB `json:"attribute_schema"`
}

type RenameDocumentRequest struct {
	Name string `json:"name" binding:"required"`
}

type CreateVersionRequest struct {
	Attributes map[string]interface{} `json:"attributes"`
}

type GrantPermissionRequest struct {
	Email      string                        `json:"email" binding:"required,email"`
	Permission models.DocumentPermissionName `json:"permission" binding:"required"`
}

// RegisterRoutes registers all document routes
func (h *DocumentHandler) RegisterRoutes(router *gin.RouterGroup) {
	types := router.Group("/document-types")
	{
		types.GET("", h.ListDocumentTypes)
		types.POST("", h.RegisterDocumentType)
	}

	docs := router.Group("/documents")
	{
		docs.POST("", h.CreateDocument)
		docs.GET("", h.ListDocuments)
		docs.GET("/:id", h.GetDocument)
		docs.PATCH("/:id", h.RenameDocument)
		docs.DELETE("/:id", h.DeleteDocument)
		docs.POST("/:id/versions", h.CreateVersion)
		docs.GET("/:id/grants", h.ListGrants)
		docs.POST("/:id/grants", h.GrantPermission)
		docs.DELETE("/:id/grants/:permission", h.RevokePermission)
	}

	versions := router.Group("/versions")
	{
		versions.GET("/:id", h.GetVersion)
		versions.GET("/:id/history", h.VersionHistory)
		versions.POST("/:id/archive", h.ArchiveVersion)
	}
}

func (h *DocumentHandler) ListDocumentTypes(c *gin.Context) {
	if _, ok := h.AuthenticateUser(c); !ok {
		return
	}
	types, err := h.documentService.ListDocumentTypes(c.Request.Context())
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, types)
}

func (h *DocumentHandler) RegisterDocumentType(c *gin.Context) {
	if _, ok := h.AuthenticateUser(c); !ok {
		return
	}
	var req RegisterDocumentTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	docType, err := h.documentService.RegisterDocumentType(c.Request.Context(), req.Name, req.AttributeSchema)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondCreated(c, docType)
}

// CreateDocument creates a document with its first draft version
// @Router /api/v1/documents [post]
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	var req services.CreateDocumentParams
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	doc, err := h.documentService.CreateDocument(c.Request.Context(), actor, req)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondCreated(c, doc)
}

func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	params := h.ParsePagination(c)
	docs, total, err := h.documentService.ListDocuments(c.Request.Context(), actor, params)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondPage(c, docs, total, params)
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	doc, err := h.documentService.GetDocument(c.Request.Context(), actor, id)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, doc)
}

func (h *DocumentHandler) RenameDocument(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	var req RenameDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	if err := h.documentService.RenameDocument(c.Request.Context(), actor, id, req.Name); err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, SuccessResponse{Message: "Document renamed", Success: true})
}

func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	if err := h.documentService.DeleteDocument(c.Request.Context(), actor, id); err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, SuccessResponse{Message: "Document deleted", Success: true})
}

func (h *DocumentHandler) CreateVersion(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	var req CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	version, err := h.documentService.CreateVersion(c.Request.Context(), actor, id, req.Attributes)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondCreated(c, version)
}

func (h *DocumentHandler) ListGrants(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	grants, err := h.documentService.ListGrants(c.Request.Context(), actor, id)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, grants)
}

func (h *DocumentHandler) GrantPermission(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	var req GrantPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	grant, err := h.documentService.GrantPermission(c.Request.Context(), actor, id, req.Email, req.Permission)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondCreated(c, grant)
}

// RevokePermission removes ?email=<user> from the permission named in the path
func (h *DocumentHandler) RevokePermission(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	email := c.Query("email")
	if email == "" {
		h.RespondBadRequest(c, "email query parameter is required")
		return
	}
	permission := models.DocumentPermissionName(c.Param("permission"))
	if err := h.documentService.RevokePermission(c.Request.Context(), actor, id, email, permission); err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, SuccessResponse{Message: "Permission revoked", Success: true})
}

func (h *DocumentHandler) GetVersion(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	version, err := h.documentService.GetVersion(c.Request.Context(), actor, id)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, version)
}

func (h *DocumentHandler) VersionHistory(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	params := h.ParsePagination(c)
	entries, total, err := h.documentService.VersionHistory(c.Request.Context(), actor, id, params)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondPage(c, entries, total, params)
}

func (h *DocumentHandler) ArchiveVersion(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	result, err := h.documentService.ArchiveVersion(c.Request.Context(), actor, id)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, gin.H{"from": result.From, "to": result.To, "applied": result.Applied})
}
