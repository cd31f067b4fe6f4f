package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"jan-server/services/chat-api/internal/infrastructure/logger"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

type ErrorResponse struct {
	Code          string `json:"code"`
	Error         string `json:"error"`
	ErrorInstance error  `json:"-"`
	RequestID     string `json:"request_id,omitempty"`
}

type GeneralResponse[T any] struct {
	Status string `json:"status"`
	Result T      `json:"result"`
}

type ListResponse[T any] struct {
	Total   int64 `json:"total"`
	Results []T   `json:"results"`
}

// HandleError maps err to a status code from its platform error type. An
// empty message falls back to the error's own message for client errors.
func HandleError(reqCtx *gin.Context, err error, message string) {
	var domainErr *platformerrors.PlatformError
	if !errors.As(err, &domainErr) {
		reqCtx.Error(err)
		reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error:         fallback(message, "internal server error"),
			ErrorInstance: err,
		})
		return
	}

	statusCode := platformerrors.ErrorTypeToHTTPStatus(domainErr.Type)
	if message == "" {
		message = domainErr.Message
		if statusCode >= http.StatusInternalServerError {
			message = "internal server error"
		}
	}
	if statusCode >= http.StatusInternalServerError {
		platformerrors.LogError(logger.GetLogger(), domainErr)
		reqCtx.Error(domainErr)
	}
	reqCtx.AbortWithStatusJSON(statusCode, ErrorResponse{
		Code:          domainErr.UUID,
		Error:         message,
		ErrorInstance: domainErr,
		RequestID:     domainErr.RequestID,
	})
}

// HandleErrorWithStatus overrides the status derived from the error type.
func HandleErrorWithStatus(reqCtx *gin.Context, statusCode int, err error, message string) {
	errResp := ErrorResponse{Error: message, ErrorInstance: err}
	var domainErr *platformerrors.PlatformError
	if errors.As(err, &domainErr) {
		errResp.Code = domainErr.UUID
		errResp.RequestID = domainErr.RequestID
	}
	reqCtx.AbortWithStatusJSON(statusCode, errResp)
}

// HandleNewError creates a typed error at the handler layer and responds with it.
func HandleNewError(reqCtx *gin.Context, errorType platformerrors.ErrorType, message string, code string) {
	err := platformerrors.NewError(reqCtx.Request.Context(), platformerrors.LayerHandler, errorType, message, nil, code)
	reqCtx.AbortWithStatusJSON(platformerrors.ErrorTypeToHTTPStatus(errorType), ErrorResponse{
		Code:          err.UUID,
		Error:         message,
		ErrorInstance: err,
		RequestID:     err.RequestID,
	})
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
