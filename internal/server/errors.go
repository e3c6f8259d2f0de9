package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/larrybwosi/workspace-sub003/internal/access"
	apitokendomain "github.com/larrybwosi/workspace-sub003/internal/apitoken/domain"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	"github.com/larrybwosi/workspace-sub003/internal/fanout"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	identitydomain "github.com/larrybwosi/workspace-sub003/internal/identity/domain"
	messagedomain "github.com/larrybwosi/workspace-sub003/internal/message/domain"
	notificationdomain "github.com/larrybwosi/workspace-sub003/internal/notification/domain"
	"github.com/larrybwosi/workspace-sub003/internal/signature"
	webhookdomain "github.com/larrybwosi/workspace-sub003/internal/webhook/domain"
	"github.com/larrybwosi/workspace-sub003/internal/webhook/inbound"
	workspacedomain "github.com/larrybwosi/workspace-sub003/internal/workspace/domain"
	"github.com/larrybwosi/workspace-sub003/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

const quotaExhaustedMessage = "token quota exhausted: usage is cumulative and does not reset, do not retry with this token"

type errorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details []ValidationError `json:"details,omitempty"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrPayloadTooLarge    = errors.New("payload_too_large")
)

const (
	typeValidation   = "validation_error"
	typeUnauthorized = "unauthorized"
	typeForbidden    = "forbidden"
	typeNotFound     = "not_found"
	typeConflict     = "conflict"
	typeRateLimited  = "rate_limited"
	typeUnavailable  = "service_unavailable"
	typeInternal     = "internal_error"
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusTooManyRequests {
			if retry := retryAfterSeconds(lastErr.Err); retry > 0 {
				c.Header("Retry-After", strconv.Itoa(retry))
			}
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: typeInternal}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorResponse{
			Error:   "validation error",
			Code:    typeValidation,
			Details: vErr.Errors,
		}
	}

	var payloadErr *inbound.PayloadError
	if errors.As(err, &payloadErr) {
		details := make([]ValidationError, 0, len(payloadErr.Fields))
		for _, field := range payloadErr.Fields {
			details = append(details, ValidationError{Field: field.Field, Code: field.Code, Message: field.Message})
		}
		return http.StatusBadRequest, errorResponse{
			Error:   "invalid payload",
			Code:    inbound.ErrInvalidPayload.Error(),
			Details: details,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorResponse{
			Error: "validation error",
			Code:  code,
			Details: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var denied *access.DeniedError
	if errors.As(err, &denied) {
		return http.StatusForbidden, errorResponse{Error: "forbidden", Code: denied.Reason}
	}

	switch {
	case isUnauthorizedError(err):
		return http.StatusUnauthorized, errorResponse{Error: "unauthorized", Code: sentinelCode(err, typeUnauthorized)}
	case isForbiddenError(err):
		return http.StatusForbidden, errorResponse{Error: "forbidden", Code: sentinelCode(err, typeForbidden)}
	case isNotFoundError(err):
		return http.StatusNotFound, errorResponse{Error: "not found", Code: sentinelCode(err, typeNotFound)}
	case isConflictError(err):
		return http.StatusConflict, errorResponse{Error: "conflict", Code: sentinelCode(err, typeConflict)}
	case errors.Is(err, gatewaydomain.ErrRateLimitExceeded):
		if retryAfterSeconds(err) > 0 {
			return http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded, retry after the Retry-After delay", Code: gatewaydomain.ErrRateLimitExceeded.Error()}
		}
		// Token usage is cumulative, so waiting never frees quota.
		return http.StatusTooManyRequests, errorResponse{Error: quotaExhaustedMessage, Code: gatewaydomain.ErrRateLimitExceeded.Error()}
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, errorResponse{Error: "payload too large", Code: ErrPayloadTooLarge.Error()}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: "service unavailable", Code: typeUnavailable}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: typeInternal}
	}
}

// classifyErrorForLog feeds the request logger with the same taxonomy the
// client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return typeValidation, payload.Code
	case http.StatusUnauthorized:
		return typeUnauthorized, payload.Code
	case http.StatusForbidden:
		return typeForbidden, payload.Code
	case http.StatusNotFound:
		return typeNotFound, payload.Code
	case http.StatusConflict:
		return typeConflict, payload.Code
	case http.StatusTooManyRequests:
		return typeRateLimited, payload.Code
	case http.StatusServiceUnavailable:
		return typeUnavailable, payload.Code
	default:
		return typeInternal, payload.Code
	}
}

func retryAfterSeconds(err error) int {
	var limited *inbound.RateLimitedError
	if errors.As(err, &limited) && limited.RetryAfter > 0 {
		return int(math.Ceil(limited.RetryAfter.Seconds()))
	}
	return 0
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func sentinelCode(err error, fallback string) string {
	for _, candidate := range knownSentinels {
		if errors.Is(err, candidate) {
			return candidate.Error()
		}
	}
	return fallback
}

var knownSentinels = []error{
	gatewaydomain.ErrMissingCredential,
	gatewaydomain.ErrInvalidCredential,
	gatewaydomain.ErrSignatureMismatch,
	gatewaydomain.ErrInsufficientScope,
	signature.ErrMissing,
	signature.ErrMismatch,
	signature.ErrMalformed,
	signature.ErrExpired,
	identitydomain.ErrInvalidSession,
	identitydomain.ErrUserNotFound,
	identitydomain.ErrHandleTaken,
	messagedomain.ErrMessageNotFound,
	messagedomain.ErrThreadNotFound,
	messagedomain.ErrParentNotFound,
	messagedomain.ErrReactionNotFound,
	messagedomain.ErrReactionExists,
	messagedomain.ErrThreadExists,
	messagedomain.ErrMessageDeleted,
	messagedomain.ErrNotAuthor,
	messagedomain.ErrUserRequired,
	workspacedomain.ErrWorkspaceNotFound,
	workspacedomain.ErrChannelNotFound,
	workspacedomain.ErrDepartmentNotFound,
	workspacedomain.ErrMemberExists,
	workspacedomain.ErrDepartmentExists,
	workspacedomain.ErrChannelExists,
	workspacedomain.ErrChannelMemberExists,
	workspacedomain.ErrNotWorkspaceMember,
	workspacedomain.ErrNotOwner,
	webhookdomain.ErrWebhookNotFound,
	webhookdomain.ErrIncomingNotFound,
	apitokendomain.ErrTokenNotFound,
	apitokendomain.ErrKeyNotFound,
	notificationdomain.ErrNotificationNotFound,
	access.ErrInvalidActor,
	ErrUnauthorized,
	ErrForbidden,
	ErrNotFound,
	ErrConflict,
}

func isUnauthorizedError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, gatewaydomain.ErrMissingCredential),
		errors.Is(err, gatewaydomain.ErrInvalidCredential),
		errors.Is(err, gatewaydomain.ErrSignatureMismatch),
		errors.Is(err, signature.ErrMissing),
		errors.Is(err, signature.ErrMismatch),
		errors.Is(err, signature.ErrMalformed),
		errors.Is(err, signature.ErrExpired),
		errors.Is(err, identitydomain.ErrInvalidSession):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, access.ErrForbidden),
		errors.Is(err, access.ErrInvalidActor),
		errors.Is(err, gatewaydomain.ErrInsufficientScope),
		errors.Is(err, messagedomain.ErrNotAuthor),
		errors.Is(err, messagedomain.ErrUserRequired),
		errors.Is(err, workspacedomain.ErrNotWorkspaceMember),
		errors.Is(err, workspacedomain.ErrNotOwner):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, identitydomain.ErrUserNotFound),
		errors.Is(err, messagedomain.ErrMessageNotFound),
		errors.Is(err, messagedomain.ErrThreadNotFound),
		errors.Is(err, messagedomain.ErrParentNotFound),
		errors.Is(err, messagedomain.ErrReactionNotFound),
		errors.Is(err, workspacedomain.ErrWorkspaceNotFound),
		errors.Is(err, workspacedomain.ErrChannelNotFound),
		errors.Is(err, workspacedomain.ErrDepartmentNotFound),
		errors.Is(err, webhookdomain.ErrWebhookNotFound),
		errors.Is(err, webhookdomain.ErrIncomingNotFound),
		errors.Is(err, apitokendomain.ErrTokenNotFound),
		errors.Is(err, apitokendomain.ErrKeyNotFound),
		errors.Is(err, notificationdomain.ErrNotificationNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, identitydomain.ErrHandleTaken),
		errors.Is(err, messagedomain.ErrReactionExists),
		errors.Is(err, messagedomain.ErrThreadExists),
		errors.Is(err, messagedomain.ErrMessageDeleted),
		errors.Is(err, workspacedomain.ErrMemberExists),
		errors.Is(err, workspacedomain.ErrDepartmentExists),
		errors.Is(err, workspacedomain.ErrChannelExists),
		errors.Is(err, workspacedomain.ErrChannelMemberExists),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	default:
		return false
	}
}

var validationSentinels = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidCursor,
	fanout.ErrInvalidTopic,
	inbound.ErrUnknownAction,
	inbound.ErrChannelRequired,
	inbound.ErrWorkspaceRequired,
	identitydomain.ErrInvalidHandle,
	messagedomain.ErrInvalidChannel,
	messagedomain.ErrInvalidContent,
	messagedomain.ErrContentTooLong,
	messagedomain.ErrInvalidMessageType,
	messagedomain.ErrInvalidAttachment,
	messagedomain.ErrTooManyAttachments,
	messagedomain.ErrInvalidEmoji,
	messagedomain.ErrInvalidCursor,
	messagedomain.ErrNotRootMessage,
	workspacedomain.ErrInvalidName,
	workspacedomain.ErrInvalidRole,
	workspacedomain.ErrInvalidUser,
	webhookdomain.ErrInvalidName,
	webhookdomain.ErrInvalidURL,
	webhookdomain.ErrInvalidEvents,
	webhookdomain.ErrInvalidFormat,
	webhookdomain.ErrInvalidWorkspace,
	webhookdomain.ErrInvalidCursor,
	apitokendomain.ErrInvalidWorkspace,
	apitokendomain.ErrInvalidUser,
	apitokendomain.ErrInvalidName,
	apitokendomain.ErrInvalidPermission,
	apitokendomain.ErrInvalidRateLimit,
	apitokendomain.ErrInvalidExpiry,
	auditdomain.ErrInvalidWorkspace,
	auditdomain.ErrInvalidCursor,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
	notificationdomain.ErrInvalidUser,
	access.ErrInvalidWorkspace,
	access.ErrInvalidObject,
	access.ErrInvalidAction,
}

func isValidationError(err error) bool {
	for _, candidate := range validationSentinels {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}

func validationErrorCode(err error) string {
	for _, candidate := range validationSentinels {
		if errors.Is(err, candidate) {
			return candidate.Error()
		}
	}
	return "invalid_request"
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "content_too_long":
		return "content"
	case "too_many_attachments":
		return "attachments"
	case "channel_required":
		return "channelId"
	case "workspace_required":
		return "workspaceId"
	case "unknown_action":
		return "action"
	case "not_root_message":
		return "messageId"
	case "invalid_time_range":
		return "start_at"
	}
	return strings.TrimPrefix(code, "invalid_")
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "content_too_long":
		return "content exceeds the maximum length"
	case "too_many_attachments":
		return "too many attachments"
	case "channel_required":
		return "channelId is required"
	case "workspace_required":
		return "workspaceId is required"
	case "unknown_action":
		return "unsupported action"
	case "not_root_message":
		return "threads start from root messages"
	default:
		return "invalid value"
	}
}
