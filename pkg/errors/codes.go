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
	ErrCodeNotImplemented     ErrorCode = "COMMON_016"
)

// Aliases used at call sites.
const (
	CodeUnknown        = ErrorCode("")
	CodeOK             = ErrorCode("OK")
	CodeInternal       = ErrCodeInternal
	CodeInvalidParam   = ErrCodeBadRequest
	CodeNotFound       = ErrCodeNotFound
	CodeConflict       = ErrCodeConflict
	CodeUnavailable    = ErrCodeServiceUnavailable
	CodeNotImplemented = ErrCodeNotImplemented
)

// Taxonomy Module Error Codes
const (
	ErrCodeMalformedPath      ErrorCode = "TAX_001"
	ErrCodeTaxonNotFound      ErrorCode = "TAX_002"
	ErrCodeInvariantViolation ErrorCode = "TAX_003"
	ErrCodeInvalidDepth       ErrorCode = "TAX_004"
)

// Statistics Module Error Codes
const (
	ErrCodeEmptyDataset ErrorCode = "STAT_001"
)

// Dataset Module Error Codes
const (
	ErrCodeDatasetParse     ErrorCode = "DATA_001"
	ErrCodeDatasetNotFound  ErrorCode = "DATA_002"
	ErrCodeDatasetInvalid   ErrorCode = "DATA_003"
	ErrCodeDatasetLocked    ErrorCode = "DATA_004"
	ErrCodeSchemeNotFound   ErrorCode = "DATA_005"
	ErrCodeMetadataNotFound ErrorCode = "DATA_006"
)

// View Module Error Codes
const (
	ErrCodeViewRejected       ErrorCode = "VIEW_001"
	ErrCodeSortOrderMismatch  ErrorCode = "VIEW_002"
	ErrCodeControlUnsupported ErrorCode = "VIEW_003"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeMalformedPath:      http.StatusBadRequest,
	ErrCodeTaxonNotFound:      http.StatusNotFound,
	ErrCodeInvariantViolation: http.StatusInternalServerError,
	ErrCodeInvalidDepth:       http.StatusBadRequest,

	ErrCodeEmptyDataset: http.StatusUnprocessableEntity,

	ErrCodeDatasetParse:     http.StatusBadRequest,
	ErrCodeDatasetNotFound:  http.StatusNotFound,
	ErrCodeDatasetInvalid:   http.StatusBadRequest,
	ErrCodeDatasetLocked:    http.StatusConflict,
	ErrCodeSchemeNotFound:   http.StatusNotFound,
	ErrCodeMetadataNotFound: http.StatusNotFound,

	ErrCodeViewRejected:       http.StatusUnprocessableEntity,
	ErrCodeSortOrderMismatch:  http.StatusConflict,
	ErrCodeControlUnsupported: http.StatusBadRequest,
}

// ErrorCodeMessage holds the default user-facing message per code.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeMalformedPath:      "malformed taxonomic path",
	ErrCodeTaxonNotFound:      "taxon not found",
	ErrCodeInvariantViolation: "taxonomy invariant violated",
	ErrCodeInvalidDepth:       "invalid depth",

	ErrCodeEmptyDataset: "dataset has no samples",

	ErrCodeDatasetParse:     "failed to parse dataset",
	ErrCodeDatasetNotFound:  "dataset not found",
	ErrCodeDatasetInvalid:   "dataset is inconsistent",
	ErrCodeDatasetLocked:    "dataset is being imported",
	ErrCodeSchemeNotFound:   "color scheme not found",
	ErrCodeMetadataNotFound: "metadata column not found",

	ErrCodeViewRejected:       "view change rejected",
	ErrCodeSortOrderMismatch:  "sort order does not match active sorts",
	ErrCodeControlUnsupported: "unsupported control",
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
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
