package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeFeatureDisabled    ErrorCode = "COMMON_015"
)

// Aliases used at call sites.
const (
	CodeUnknown      = ErrorCode("")
	CodeOK           = ErrorCode("OK")
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeUnavailable  = ErrCodeServiceUnavailable
	CodeDatabase     = ErrCodeDatabaseError
	CodeCache        = ErrCodeCacheError
)

// Attribution engine codes
const (
	ErrCodeEmptyInput         ErrorCode = "ATTR_001"
	ErrCodeInvalidObservation ErrorCode = "ATTR_002"
	ErrCodeInvalidChartSpec   ErrorCode = "ATTR_003"
	ErrCodeLayoutMismatch     ErrorCode = "ATTR_004"
)

// Data Source Error Codes
const (
	ErrCodeDataSourceUnavailable ErrorCode = "SRC_001"
	ErrCodeDataSourceQueryFailed ErrorCode = "SRC_002"
	ErrCodeDataSourceParseError  ErrorCode = "SRC_004"
	ErrCodeRunInProgress         ErrorCode = "SRC_005"
)

// Language model Error Codes
const (
	ErrCodeLLMUnavailable     ErrorCode = "LLM_001"
	ErrCodeLLMRequestFailed   ErrorCode = "LLM_002"
	ErrCodeLLMBadResponse     ErrorCode = "LLM_003"
	ErrCodeLLMBackendUnknown  ErrorCode = "LLM_004"
	ErrCodeLLMEmptyCompletion ErrorCode = "LLM_005"
)

// Artifact storage Error Codes
const (
	ErrCodeStorageWriteFailed ErrorCode = "STO_001"
	ErrCodeStorageReadFailed  ErrorCode = "STO_002"
	ErrCodeStorageBucket      ErrorCode = "STO_003"
)

// Event Error Codes
const (
	ErrCodeEventPublishFailed ErrorCode = "EVT_001"
	ErrCodeEventDecodeFailed  ErrorCode = "EVT_002"
	ErrCodeEventHandlerFailed ErrorCode = "EVT_003"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeFeatureDisabled:    http.StatusForbidden,

	ErrCodeEmptyInput:         http.StatusNotFound,
	ErrCodeInvalidObservation: http.StatusBadRequest,
	ErrCodeInvalidChartSpec:   http.StatusBadRequest,
	ErrCodeLayoutMismatch:     http.StatusBadRequest,

	ErrCodeDataSourceUnavailable: http.StatusServiceUnavailable,
	ErrCodeDataSourceQueryFailed: http.StatusInternalServerError,
	ErrCodeDataSourceParseError:  http.StatusInternalServerError,
	ErrCodeRunInProgress:         http.StatusConflict,

	ErrCodeLLMUnavailable:     http.StatusServiceUnavailable,
	ErrCodeLLMRequestFailed:   http.StatusBadGateway,
	ErrCodeLLMBadResponse:     http.StatusBadGateway,
	ErrCodeLLMBackendUnknown:  http.StatusBadRequest,
	ErrCodeLLMEmptyCompletion: http.StatusBadGateway,

	ErrCodeStorageWriteFailed: http.StatusInternalServerError,
	ErrCodeStorageReadFailed:  http.StatusInternalServerError,
	ErrCodeStorageBucket:      http.StatusInternalServerError,

	ErrCodeEventPublishFailed: http.StatusInternalServerError,
	ErrCodeEventDecodeFailed:  http.StatusBadRequest,
	ErrCodeEventHandlerFailed: http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "not found",
	ErrCodeConflict:           "conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeFeatureDisabled:    "feature disabled",

	ErrCodeEmptyInput:         "nothing to display",
	ErrCodeInvalidObservation: "invalid observation",
	ErrCodeInvalidChartSpec:   "invalid chart specification",
	ErrCodeLayoutMismatch:     "paired tables do not share an entity order",

	ErrCodeDataSourceUnavailable: "data source unavailable",
	ErrCodeDataSourceQueryFailed: "data source query failed",
	ErrCodeDataSourceParseError:  "failed to parse data source rows",
	ErrCodeRunInProgress:         "an identical run is already in progress",

	ErrCodeLLMUnavailable:     "language model unavailable",
	ErrCodeLLMRequestFailed:   "language model request failed",
	ErrCodeLLMBadResponse:     "malformed language model response",
	ErrCodeLLMBackendUnknown:  "unknown language model backend",
	ErrCodeLLMEmptyCompletion: "language model returned no content",

	ErrCodeStorageWriteFailed: "failed to write artifact",
	ErrCodeStorageReadFailed:  "failed to read artifact",
	ErrCodeStorageBucket:      "artifact bucket unavailable",

	ErrCodeEventPublishFailed: "failed to publish event",
	ErrCodeEventDecodeFailed:  "failed to decode event",
	ErrCodeEventHandlerFailed: "event handler failed",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
