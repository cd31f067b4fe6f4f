package turn

import (
	"context"
	"errors"

	"jan-server/services/chat-api/internal/domain/quota"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

var (
	ErrEmptyContent         = errors.New("message content is empty")
	ErrGenerationInProgress = errors.New("a response is already being generated")
	ErrNoModel              = errors.New("no model selected")
	ErrUnknownModel         = errors.New("model is not available")
	ErrNothingToRegenerate  = errors.New("there is no message to regenerate")
	ErrConversationLoading  = errors.New("conversation is still loading")

	errEmptyResponse = errors.New("empty response")
)

func rejectTurn(ctx context.Context, err error) error {
	errorType := platformerrors.ErrorTypeValidation
	code := "turn.validation"
	switch {
	case errors.Is(err, ErrGenerationInProgress):
		errorType = platformerrors.ErrorTypeConflict
		code = "turn.in_progress"
	case errors.Is(err, ErrConversationLoading):
		errorType = platformerrors.ErrorTypeConflict
		code = "turn.loading"
	case errors.Is(err, quota.ErrQuotaExceeded):
		errorType = platformerrors.ErrorTypeTooManyRequests
		code = "turn.quota_exceeded"
	}
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, errorType, err.Error(), err, code)
}
