package errors

import "net/http"

// Code classifies a failure for clients and for retry decisions.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodePrecondition Code = "PRECONDITION_FAILED"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeSignature    Code = "INVALID_SIGNATURE"
	CodeGateway      Code = "GATEWAY_ERROR"
	CodeSinkWrite    Code = "SINK_WRITE_ERROR"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	switch code {
	case CodeValidation:
		return Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true}
	case CodePrecondition:
		// out-of-order checkout steps are user-correctable; details name the
		// step to resume at
		return Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: "checkout step not allowed yet", DetailsAllowed: true}
	case CodeUnauthorized:
		return Metadata{HTTPStatus: http.StatusUnauthorized, PublicMessage: "session required"}
	case CodeNotFound:
		return Metadata{HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"}
	case CodeConflict:
		return Metadata{HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"}
	case CodeSignature:
		return Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: "invalid signature"}
	case CodeGateway:
		return Metadata{HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "payment gateway error", DetailsAllowed: true}
	case CodeSinkWrite:
		return Metadata{HTTPStatus: http.StatusBadGateway, Retryable: true, PublicMessage: "order sink unavailable"}
	case CodeDependency:
		return Metadata{HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true}
	default:
		return Metadata{HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"}
	}
}
