package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/archivus/docflow/internal/app/middleware"
	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/domain/services"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	config *HandlerConfig
	logger *logger.Logger
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(log *logger.Logger) *BaseHandler {
	return &BaseHandler{
		config: NewHandlerConfig(),
		logger: log,
	}
}

// AuthenticateUser extracts the actor set by the auth middleware
func (b *BaseHandler) AuthenticateUser(c *gin.Context) (services.Actor, bool) {
	userCtx := middleware.GetUserContext(c)
	if userCtx == nil {
		b.RespondUnauthorized(c, "User authentication required")
		return services.Actor{}, false
	}
	return userCtx.Actor(), true
}

// RespondError sends a standardized error response
func (b *BaseHandler) RespondError(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	response := ErrorResponse{
		Error:   errorCode,
		Message: message,
		Status:  statusCode,
	}

	// Include details based on environment
	if len(details) > 0 && b.config.EnableDebugErrors {
		response.Details = details[0]
	}

	c.JSON(statusCode, response)
}

// RespondServiceError maps an engine error onto an HTTP status. The error
// code of a WorkflowError is passed through so clients can branch on it.
func (b *BaseHandler) RespondServiceError(c *gin.Context, err error) {
	var we *services.WorkflowError
	if !errors.As(err, &we) {
		b.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		b.RespondInternalError(c, "Internal server error", err.Error())
		return
	}

	status := statusForKind(we.Kind)
	if errors.Is(err, services.ErrNoDocumentType) {
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		b.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("code", we.Code),
			slog.String("error", err.Error()),
		)
	}
	b.RespondError(c, status, we.Code, we.Message, err.Error())
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindMissingPermission:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindIllegalTransition, services.KindStatusIncorrect, services.KindAlreadyExists, services.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// RespondUnauthorized sends a standardized unauthorized response
func (b *BaseHandler) RespondUnauthorized(c *gin.Context, message string) {
	b.RespondError(c, http.StatusUnauthorized, "unauthorized", message)
}

// RespondBadRequest sends a standardized bad request response
func (b *BaseHandler) RespondBadRequest(c *gin.Context, message string, details ...string) {
	b.RespondError(c, http.StatusBadRequest, "invalid_request", message, details...)
}

// RespondInternalError sends a standardized internal server error response
func (b *BaseHandler) RespondInternalError(c *gin.Context, message string, details ...string) {
	b.RespondError(c, http.StatusInternalServerError, "internal_error", message, details...)
}

// RespondSuccess sends a standardized success response
func (b *BaseHandler) RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondCreated sends a standardized created response
func (b *BaseHandler) RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// RespondPage wraps a page of results with its paging metadata
func (b *BaseHandler) RespondPage(c *gin.Context, data interface{}, total int64, params repositories.ListParams) {
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages(total, params.PageSize),
	})
}

// ParsePagination extracts and validates pagination parameters
func (b *BaseHandler) ParsePagination(c *gin.Context) repositories.ListParams {
	page := getIntParam(c, "page", 1)
	if page < 1 {
		page = 1
	}
	return repositories.ListParams{
		Page:     page,
		PageSize: b.config.ValidatePageSize(getIntParam(c, "per_page", b.config.DefaultPageSize)),
		SortDesc: c.DefaultQuery("sort_desc", "true") == "true",
	}
}

// ValidateUUID parses the named path parameter and responds with an error if invalid
func (b *BaseHandler) ValidateUUID(c *gin.Context, paramName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(paramName))
	if err != nil {
		b.RespondBadRequest(c, "Invalid "+paramName+" format")
		return uuid.Nil, false
	}
	return id, true
}
